package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"whatsdata/internal/errors"
	"whatsdata/internal/httputil"
	"whatsdata/internal/metrics"

	"github.com/sirupsen/logrus"
)

// RateLimiter is a sliding-window request counter keyed by client address.
// Expired timestamps are dropped on every Allow; idle keys are swept at most
// once per window and by Cleanup.
type RateLimiter struct {
	mu        sync.RWMutex
	requests  map[string][]time.Time
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// LimitStatus is the view of one client's window
type LimitStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// NewRateLimiter allows limit requests per window. A limit of zero or less blocks everything.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// SetLimit changes the limit and window in place; existing history is kept
func (rl *RateLimiter) SetLimit(limit int, window time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limit = limit
	rl.window = window
}

// Limit returns the configured limit and window
func (rl *RateLimiter) Limit() (int, time.Duration) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limit, rl.window
}

func normalizeKey(key string) string {
	if host, _, err := net.SplitHostPort(key); err == nil {
		return host
	}
	return key
}

// prune keeps only timestamps inside the window; callers hold the write lock
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// Allow records a request for key and reports whether it fits the window
func (rl *RateLimiter) Allow(key string) bool {
	key = normalizeKey(key)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.limit <= 0 {
		return false
	}

	now := rl.now()
	cutoff := now.Add(-rl.window)

	if now.Sub(rl.lastSweep) >= rl.window {
		rl.sweep(cutoff)
		rl.lastSweep = now
	}

	times := prune(rl.requests[key], cutoff)
	if len(times) >= rl.limit {
		rl.requests[key] = times
		return false
	}
	rl.requests[key] = append(times, now)
	return true
}

func (rl *RateLimiter) sweep(cutoff time.Time) int {
	removed := 0
	for k, times := range rl.requests {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(rl.requests, k)
			removed++
		}
	}
	return removed
}

// Status reports the remaining allowance without recording a request
func (rl *RateLimiter) Status(key string) LimitStatus {
	key = normalizeKey(key)

	rl.mu.RLock()
	defer rl.mu.RUnlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	active := 0
	var oldest time.Time
	for _, ts := range rl.requests[key] {
		if ts.After(cutoff) {
			if active == 0 {
				oldest = ts
			}
			active++
		}
	}

	st := LimitStatus{Limit: rl.limit, ResetAt: now}
	if rl.limit > active {
		st.Remaining = rl.limit - active
	}
	if active > 0 {
		st.ResetAt = oldest.Add(rl.window)
	}
	return st
}

// Cleanup drops keys whose newest request is older than maxIdle (or the
// window, whichever is longer) and returns how many were removed
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if maxIdle < rl.window {
		maxIdle = rl.window
	}
	now := rl.now()
	rl.lastSweep = now
	return rl.sweep(now.Add(-maxIdle))
}

// Size returns the number of tracked keys
func (rl *RateLimiter) Size() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.requests)
}

// Clear forgets all history
func (rl *RateLimiter) Clear() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.requests = make(map[string][]time.Time)
}

// RateLimitMiddleware rejects clients over their allowance with a 429 envelope
func RateLimitMiddleware(rl *RateLimiter, trustProxy bool, logger *logrus.Logger) func(http.Handler) http.Handler {
	errLogger := errors.Wrapped(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := httputil.GetClientIP(r, trustProxy)
			allowed := rl.Allow(ip)
			st := rl.Status(ip)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(st.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(st.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(st.ResetAt.Unix(), 10))

			if !allowed {
				limit, window := rl.Limit()
				err := errors.NewRateLimitError(limit, window.String())
				metrics.IncrementCounter("rate_limit_rejections_total", nil, "Requests rejected by the rate limiter")
				errLogger.LogWarn(err, "Rate limit exceeded", logrus.Fields{
					"path":      r.URL.Path,
					"client_ip": ip,
				})
				retry := int(st.ResetAt.Sub(rl.now()).Seconds()) + 1
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
