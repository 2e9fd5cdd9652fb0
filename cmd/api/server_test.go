package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bighogz/insider-clusters/internal/cluster"
	"github.com/bighogz/insider-clusters/internal/ingest"
	"github.com/bighogz/insider-clusters/internal/models"
	"github.com/bighogz/insider-clusters/internal/pipeline"
	"github.com/bighogz/insider-clusters/internal/store"
)

const testAdminKey = "s3cret"

func newTestServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.EnsureBronze(ctx))
	require.NoError(t, st.EnsureWatchlist(ctx))

	records := []models.RawTransaction{
		{TradeDate: "2024-01-01", Ticker: "XYZ", CompanyName: "XYZ Corp", InsiderName: "A", Title: "CEO", TradeType: "P - Purchase", Price: 10, Quantity: 1_000},
		{TradeDate: "2024-01-11", Ticker: "XYZ", CompanyName: "XYZ Corp", InsiderName: "B", Title: "CFO", TradeType: "P - Purchase", Price: 20, Quantity: 3_000},
	}
	require.NoError(t, st.WithWriter(ctx, 10, func(w *store.Writer) error {
		return ingest.Write(ctx, records, w)
	}))

	opts := pipeline.Options{
		BatchSize: 10,
		Criteria:  cluster.DefaultCriteria(),
		MaxAge:    90 * 24 * time.Hour,
		Now:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	return newServer(st, opts, testAdminKey)
}

func do(t *testing.T, h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	h := newTestServer(t).routes()
	rec := do(t, h, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestPipelineRun(t *testing.T) {
	s := newTestServer(t)
	h := s.routes()

	rec := do(t, h, http.MethodGet, "/api/pipeline/last", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/pipeline/run", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/pipeline/run", http.Header{"X-Admin-Key": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/pipeline/run", http.Header{"Authorization": {"Bearer " + testAdminKey}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["raw_rows"])
	assert.Len(t, body["hits"], 1)
	assert.NotEmpty(t, body["run_id"])

	rec = do(t, h, http.MethodPost, "/api/pipeline/run", http.Header{"X-Admin-Key": {testAdminKey}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = do(t, h, http.MethodGet, "/api/pipeline/last", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body["run_id"], decode(t, rec)["run_id"])

	rec = do(t, h, http.MethodGet, "/api/watchlist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var wl struct {
		Watchlist []models.WatchlistEntry `json:"watchlist"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wl))
	require.Len(t, wl.Watchlist, 1)
	assert.Equal(t, "XYZ", wl.Watchlist[0].Ticker)
	assert.Nil(t, wl.Watchlist[0].Score)
}

func TestRunConflict(t *testing.T) {
	s := newTestServer(t)
	s.running.Store(true)

	rec := do(t, s.routes(), http.MethodPost, "/api/pipeline/run", http.Header{"X-Admin-Key": {testAdminKey}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunWaitsForReaders(t *testing.T) {
	s := newTestServer(t)
	s.mu.RLock()
	go func() {
		time.Sleep(50 * time.Millisecond)
		s.mu.RUnlock()
	}()

	rec := do(t, s.routes(), http.MethodPost, "/api/pipeline/run", http.Header{"X-Admin-Key": {testAdminKey}})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, s.running.Load())
}

func TestClusters(t *testing.T) {
	s := newTestServer(t)
	h := s.routes()
	rec := do(t, h, http.MethodPost, "/api/pipeline/run", http.Header{"X-Admin-Key": {testAdminKey}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Criteria cluster.Criteria    `json:"criteria"`
		Hits     []models.ClusterHit `json:"hits"`
	}
	for _, target := range []string{"/api/clusters", "/api/clusters?sql=true"} {
		rec = do(t, h, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code, target)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Hits, 1, target)
		assert.Equal(t, "XYZ", resp.Hits[0].Ticker)
	}

	rec = do(t, h, http.MethodGet, "/api/clusters?window_days=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp.Hits = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Hits, "buys ten days apart do not cluster in a five day window")
	assert.Equal(t, 5, resp.Criteria.WindowDays)

	rec = do(t, h, http.MethodGet, "/api/clusters?min_insiders=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(time.Hour)
	_, ok := rl.allow("a")
	assert.True(t, ok)
	wait, ok := rl.allow("a")
	assert.False(t, ok)
	assert.Greater(t, wait, 59*time.Minute)
	_, ok = rl.allow("b")
	assert.True(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
