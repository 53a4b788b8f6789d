package httputil

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
// Buckets idle for a full window are refilled anyway and get evicted.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

// NewRateLimiter allows requests per window for every client, with the same burst.
// A non-positive requests or window disables limiting.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	limit := rate.Inf
	if requests > 0 && window > 0 {
		limit = rate.Every(window / time.Duration(requests))
	}
	return &RateLimiter{
		limit:   limit,
		burst:   requests,
		idleTTL: window,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

// Allow reports whether a request from key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit == rate.Inf {
		return true
	}

	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		rl.sweep(now)
	}
	b, ok := rl.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for at least idleTTL. Callers hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	for key, b := range rl.clients {
		if now.Sub(b.lastSeen) >= rl.idleTTL {
			delete(rl.clients, key)
		}
	}
	rl.lastSweep = now
}

// Middleware rejects requests over the limit with 429.
// Clients are keyed by remote IP only; request headers never select a bucket.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
