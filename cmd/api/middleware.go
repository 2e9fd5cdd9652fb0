package main

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// securityHeaders adds security-related HTTP headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

const rateLimiterMaxSize = 10000
const rateLimiterEvictAge = time.Hour

// rateLimiter allows one request per interval per key. Map size is capped.
type rateLimiter struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{
		last:     make(map[string]time.Time),
		interval: interval,
	}
}

// allow records a hit for key. When key was seen less than interval ago it
// returns false and the time left until the next allowed hit.
func (rl *rateLimiter) allow(key string) (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	if len(rl.last) >= rateLimiterMaxSize {
		rl.evict(now)
	}
	if t, ok := rl.last[key]; ok {
		if wait := rl.interval - now.Sub(t); wait > 0 {
			return wait, false
		}
	}
	rl.last[key] = now
	return 0, true
}

func (rl *rateLimiter) evict(now time.Time) {
	for k, t := range rl.last {
		if now.Sub(t) > rateLimiterEvictAge {
			delete(rl.last, k)
		}
	}
}

func clientIP(r *http.Request) string {
	if f := r.Header.Get("X-Forwarded-For"); f != "" {
		return strings.TrimSpace(strings.Split(f, ",")[0])
	}
	return r.RemoteAddr
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait, ok := rl.allow(clientIP(r)); !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			jsonError(w, http.StatusTooManyRequests, "rate limit: try again in a few seconds")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin protects mutating routes when an admin key is configured.
func requireAdmin(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("X-Admin-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
				jsonError(w, http.StatusUnauthorized, "admin key required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
