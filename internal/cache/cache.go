package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const DefaultMaxAge = 24 * time.Hour

// Cache stores JSON payloads as one file per key under Dir.
type Cache struct {
	Dir    string
	MaxAge time.Duration
	now    func() time.Time
}

type envelope struct {
	CachedAt string          `json:"_cached_at"`
	Data     json.RawMessage `json:"data"`
}

// New returns a cache rooted at dir/cache. An empty dir falls back to
// VIBES_DATA_DIR and then to ./data.
func New(dir string, maxAge time.Duration) *Cache {
	if dir == "" {
		dir = os.Getenv("VIBES_DATA_DIR")
	}
	if dir == "" {
		dir = "data"
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cache{Dir: filepath.Join(dir, "cache"), MaxAge: maxAge, now: time.Now}
}

func (c *Cache) path(key string) string {
	key = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(c.Dir, key+".json")
}

// Read decodes the payload stored under key into v and returns when it was
// cached. Entries older than MaxAge are misses unless allowStale is set.
func (c *Cache) Read(key string, v any, allowStale bool) (time.Time, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return time.Time{}, false
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.CachedAt == "" {
		return time.Time{}, false
	}
	cachedAt, err := time.Parse(time.RFC3339, env.CachedAt)
	if err != nil {
		return time.Time{}, false
	}
	if !allowStale && c.now().Sub(cachedAt) > c.MaxAge {
		return time.Time{}, false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return time.Time{}, false
	}
	return cachedAt, true
}

func (c *Cache) Write(key string, v any) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(envelope{
		CachedAt: c.now().UTC().Format(time.RFC3339),
		Data:     data,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(key), body, 0600)
}

// CachedAt reports when key was last written, stale or not.
func (c *Cache) CachedAt(key string) *time.Time {
	var raw json.RawMessage
	t, ok := c.Read(key, &raw, true)
	if !ok {
		return nil
	}
	return &t
}
