package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Ticker string   `json:"ticker"`
	Score  *float64 `json:"score"`
}

func TestReadWrite(t *testing.T) {
	c := New(t.TempDir(), time.Hour)
	score := 42.5
	require.NoError(t, c.Write("fundamentals_XYZ", payload{Ticker: "XYZ", Score: &score}))

	var got payload
	at, ok := c.Read("fundamentals_XYZ", &got, false)
	require.True(t, ok)
	assert.Equal(t, "XYZ", got.Ticker)
	require.NotNil(t, got.Score)
	assert.Equal(t, score, *got.Score)
	assert.WithinDuration(t, time.Now(), at, time.Minute)
	assert.NotNil(t, c.CachedAt("fundamentals_XYZ"))

	_, ok = c.Read("missing", &got, true)
	assert.False(t, ok)
	assert.Nil(t, c.CachedAt("missing"))
}

func TestStaleEntries(t *testing.T) {
	c := New(t.TempDir(), time.Hour)
	require.NoError(t, c.Write("k", payload{Ticker: "OLD"}))

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	var got payload
	_, ok := c.Read("k", &got, false)
	assert.False(t, ok)
	_, ok = c.Read("k", &got, true)
	assert.True(t, ok)
	assert.Equal(t, "OLD", got.Ticker)
}

func TestKeysStayInsideDir(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 0)
	assert.Equal(t, DefaultMaxAge, c.MaxAge)
	require.NoError(t, c.Write("../../escape/BRK/B", payload{Ticker: "BRK.B"}))

	entries, err := os.ReadDir(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsDir())
}

func TestCorruptFileIsMiss(t *testing.T) {
	c := New(t.TempDir(), time.Hour)
	require.NoError(t, os.MkdirAll(c.Dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(c.Dir, "bad.json"), []byte("{not json"), 0o600))
	var got payload
	_, ok := c.Read("bad", &got, true)
	assert.False(t, ok)
}
