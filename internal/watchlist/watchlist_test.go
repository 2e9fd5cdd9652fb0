package watchlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bighogz/insider-clusters/internal/fundamentals"
	"github.com/bighogz/insider-clusters/internal/models"
	"github.com/bighogz/insider-clusters/internal/store"
)

type stubScorer struct {
	scores map[string]float64
	seen   []string
}

func (s *stubScorer) Score(_ context.Context, ticker string) fundamentals.Result {
	s.seen = append(s.seen, ticker)
	v, ok := s.scores[ticker]
	if !ok {
		return fundamentals.Result{Ticker: ticker, Metrics: fundamentals.Metrics{}, Err: fundamentals.ErrNoData}
	}
	return fundamentals.Result{Ticker: ticker, Score: &v, Metrics: fundamentals.Metrics{}}
}

type recordWriter struct {
	values [][]any
	fail   error
}

func (r *recordWriter) Write(_ context.Context, table string, columns []string, values []any) (int64, error) {
	if r.fail != nil {
		return 0, r.fail
	}
	if table != store.WatchlistTable || len(columns) != len(values) {
		return 0, store.ErrArityMismatch
	}
	r.values = append(r.values, values)
	return int64(len(r.values)), nil
}

func TestBuild(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	hits := []models.ClusterHit{
		{Ticker: "AAA", Timestamp: now.AddDate(0, 0, -10).Unix()},
		{Ticker: "OLD", Timestamp: now.AddDate(0, 0, -120).Unix()},
		{Ticker: "ZZZ", Timestamp: now.AddDate(0, 0, -1).Unix()},
	}
	scorer := &stubScorer{scores: map[string]float64{"AAA": 72.25}}

	entries := Build(context.Background(), hits, scorer, Options{Now: now, MaxAge: DefaultMaxAge})
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"AAA", "ZZZ"}, scorer.seen, "stale hits are never scored")

	assert.Equal(t, "AAA", entries[0].Ticker)
	require.NotNil(t, entries[0].Score)
	assert.Equal(t, 72.25, *entries[0].Score)
	assert.Nil(t, entries[0].Error)

	assert.Equal(t, "ZZZ", entries[1].Ticker)
	assert.Nil(t, entries[1].Score)
	require.NotNil(t, entries[1].Error)
	assert.Contains(t, *entries[1].Error, "no data")
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scorer := &stubScorer{}
	entries := Build(ctx, []models.ClusterHit{{Ticker: "AAA", Timestamp: time.Now().Unix()}}, scorer, Options{})
	require.Len(t, entries, 1)
	assert.NotNil(t, entries[0].Error)
	assert.Empty(t, scorer.seen)
}

func TestPersist(t *testing.T) {
	score := 50.5
	msg := "boom"
	entries := []models.WatchlistEntry{
		{Ticker: "AAA", Score: &score, Timestamp: 10},
		{Ticker: "BBB", Timestamp: 20, Error: &msg},
	}
	w := &recordWriter{}
	require.NoError(t, Persist(context.Background(), entries, w))
	assert.Equal(t, [][]any{{"AAA", 50.5, int64(10), nil}, {"BBB", nil, int64(20), "boom"}}, w.values)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, int64(2), entries[1].ID)

	boom := errors.New("locked")
	err := Persist(context.Background(), entries, &recordWriter{fail: boom})
	assert.ErrorIs(t, err, boom)
}
