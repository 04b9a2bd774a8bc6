package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"agromind/internal/errors"
	"agromind/internal/httputil"
	"agromind/internal/metrics"
	"agromind/internal/models"
	"agromind/internal/tracing"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Idle buckets are
// evicted lazily.
type RateLimiter struct {
	rps        rate.Limit
	burst      int
	trustProxy bool
	now        func() time.Time

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

func NewRateLimiter(cfg models.RateLimitConfig, trustProxy bool) *RateLimiter {
	return &RateLimiter{
		rps:        rate.Limit(cfg.RPS),
		burst:      cfg.Burst,
		trustProxy: trustProxy,
		now:        time.Now,
		limiters:   make(map[string]*limiterEntry),
	}
}

// Allow reports whether the client may make another request now
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for ip, entry := range rl.limiters {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(rl.limiters, ip)
			}
		}
		rl.lastSweep = now
	}

	entry, ok := rl.limiters[clientIP]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[clientIP] = entry
	}
	entry.lastSeen = now
	rl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Middleware rejects over-limit requests with 429 and the standard error
// envelope.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.Allow(httputil.ClientIP(r, rl.trustProxy)) {
			next.ServeHTTP(w, r)
			return
		}

		metrics.IncrementCounter(metrics.RateLimitedRequests, map[string]string{"endpoint": routeTemplate(r)}, "Requests rejected by the rate limiter")

		err := errors.NewRateLimitError(rl.burst, "1s")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(errors.ToHTTPResponse(err, tracing.GetRequestID(r.Context())))
	})
}
