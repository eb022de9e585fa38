package emergency

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/medrex/zeronet/pkg/types"
)

// RateLimiter is a per-client token bucket guarding the public routes
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	limit   int
	period  time.Duration
	now     func() time.Time
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter allows limit requests per client per period
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// Allow takes one token from client's bucket
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, ok := rl.buckets[client]
	if !ok {
		bucket = &tokenBucket{tokens: rl.limit, lastRefill: now}
		rl.buckets[client] = bucket
	}

	elapsed := now.Sub(bucket.lastRefill)
	if elapsed >= rl.period {
		bucket.tokens = rl.limit
		bucket.lastRefill = now
	} else if refill := int(elapsed.Nanoseconds() * int64(rl.limit) / rl.period.Nanoseconds()); refill > 0 {
		bucket.tokens = min(bucket.tokens+refill, rl.limit)
		bucket.lastRefill = now
	}

	if bucket.tokens == 0 {
		return false
	}
	bucket.tokens--
	return true
}

// Prune drops buckets idle for longer than idle
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for client, bucket := range rl.buckets {
		if bucket.lastRefill.Before(cutoff) {
			delete(rl.buckets, client)
			removed++
		}
	}
	return removed
}

// StartPruning prunes idle buckets every interval until stop is closed
func (rl *RateLimiter) StartPruning(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Prune(interval)
			case <-stop:
				return
			}
		}
	}()
}

// Middleware rejects clients that ran out of tokens with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.period.Seconds())))
			writeErrorStatus(w, http.StatusTooManyRequests,
				types.NewValidationError(types.ErrCodeRateLimited, "too many requests", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
