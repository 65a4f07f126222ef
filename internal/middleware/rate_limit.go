package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/pollinator-bot/backend/pkg/utils"
)

// RateLimiter keeps one token bucket per key (usually a user id).
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]*entry
	every  rate.Limit
	burst  int
	now    func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perSecond events per key with the
// given burst. A nil limiter or perSecond <= 0 allows everything.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limits: make(map[string]*entry),
		every:  rate.Limit(perSecond),
		burst:  burst,
		now:    time.Now,
	}
}

// getLimiter gets or creates a limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if e, ok := rl.limits[key]; ok {
		e.lastSeen = rl.now()
		return e.limiter
	}

	e := &entry{limiter: rate.NewLimiter(rl.every, rl.burst), lastSeen: rl.now()}
	rl.limits[key] = e
	return e.limiter
}

// Allow checks if an event is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil {
		return true
	}
	return rl.getLimiter(key).Allow()
}

// Forget drops buckets not used within idle and returns how many were removed.
func (rl *RateLimiter) Forget(idle time.Duration) int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for key, e := range rl.limits {
		if e.lastSeen.Before(cutoff) {
			delete(rl.limits, key)
			removed++
		}
	}
	return removed
}

// RateLimit rejects requests over the per-key limit with 429. keyFunc returns
// the bucket key; an empty key bypasses limiting.
func RateLimit(rl *RateLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := keyFunc(r); key != "" && !rl.Allow(key) {
				w.Header().Set("Retry-After", "1")
				utils.RespondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
