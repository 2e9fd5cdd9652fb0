package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"github.com/bighogz/insider-clusters/internal/logging"
	"github.com/bighogz/insider-clusters/internal/pipeline"
	"github.com/bighogz/insider-clusters/internal/store"
)

type server struct {
	store    *store.Store
	opts     pipeline.Options
	adminKey string
	limiter  *rateLimiter
	log      *logger.Entry

	// mu serializes pipeline runs against reads.
	mu      sync.RWMutex
	running atomic.Bool
	lastRun *pipeline.Report
}

func newServer(s *store.Store, opts pipeline.Options, adminKey string) *server {
	return &server{
		store:    s,
		opts:     opts,
		adminKey: adminKey,
		limiter:  newRateLimiter(5 * time.Second), // 1 run per 5s per IP
		log:      logging.Component("api"),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(securityHeaders)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/watchlist", s.handleWatchlist)
	r.Get("/api/clusters", s.handleClusters)
	r.Get("/api/pipeline/last", s.handleLastRun)
	r.With(requireAdmin(s.adminKey), s.limiter.middleware).Post("/api/pipeline/run", s.handleRun)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB.PingContext(r.Context()); err != nil {
		jsonError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := s.store.LoadWatchlist(r.Context())
	if err != nil {
		s.log.WithError(err).Error("failed to load watchlist")
		jsonError(w, http.StatusInternalServerError, "failed to load watchlist")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"watchlist": entries})
}

// handleClusters evaluates the configured criteria; window_days,
// min_insiders and min_value query parameters override it.
func (s *server) handleClusters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := s.opts.Criteria
	c.WindowDays = parseInt(q.Get("window_days"), c.WindowDays)
	c.MinInsiders = parseInt(q.Get("min_insiders"), c.MinInsiders)
	c.MinValue = parseFloat(q.Get("min_value"), c.MinValue)
	if err := c.Validate(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	useSQL, _ := strconv.ParseBool(q.Get("sql"))

	s.mu.RLock()
	defer s.mu.RUnlock()
	hits, err := pipeline.FindClusters(r.Context(), s.store, c, useSQL)
	if err != nil {
		s.log.WithError(err).Error("failed to detect clusters")
		jsonError(w, http.StatusInternalServerError, "failed to detect clusters")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"criteria": c,
		"hits":     hits,
	})
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.running.CompareAndSwap(false, true) {
		jsonError(w, http.StatusConflict, "a pipeline run is already in progress")
		return
	}
	defer s.running.Store(false)
	// waits for in-flight reads
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, err := pipeline.Run(context.WithoutCancel(r.Context()), s.store, s.opts)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.lastRun = rep
	jsonResponse(w, http.StatusOK, rep)
}

func (s *server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		jsonError(w, http.StatusNotFound, "no pipeline run since startup")
		return
	}
	jsonResponse(w, http.StatusOK, s.lastRun)
}

func jsonResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]string{"error": msg})
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
