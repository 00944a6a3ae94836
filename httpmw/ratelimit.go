package httpmw

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit is one named limit bucket (spec §5's per-route throttling, e.g.
// "quote" vs "swap.execute" getting different budgets).
type RateLimit struct {
	RatePerSecond float64
	Burst         int
}

// RateLimiter enforces per-identity, per-route token buckets. A single
// background sweeper reclaims idle buckets rather than one timer per
// visitor, so an attacker flooding distinct identities cannot fork
// goroutines faster than the sweep interval retires them.
type RateLimiter struct {
	limits map[string]RateLimit

	mu      sync.Mutex
	buckets map[string]*bucket

	now func() time.Time
}

type bucket struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

// NewRateLimiter builds a limiter keyed by route name, with limits sourced
// from config.RateLimitConfig (coordinatord's YAML config).
func NewRateLimiter(limits map[string]RateLimit) *RateLimiter {
	rl := &RateLimiter{
		limits:  limits,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	go rl.sweep(5 * time.Minute)
	return rl
}

// Middleware rate-limits requests under the named bucket. Routes with no
// configured limit pass through unthrottled.
func (r *RateLimiter) Middleware(route string) func(http.Handler) http.Handler {
	limit, configured := r.limits[route]
	return func(next http.Handler) http.Handler {
		if !configured {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id := route + "|" + clientIdentity(req)
			if !r.obtain(id, limit).AllowN(r.now(), 1) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RateLimiter) obtain(id string, limit RateLimit) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[id]; ok {
		b.lastSeenAt = r.now()
		return b.limiter
	}
	perSecond := limit.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := limit.Burst
	if burst <= 0 {
		burst = 1
	}
	b := &bucket{limiter: rate.NewLimiter(rate.Limit(perSecond), burst), lastSeenAt: r.now()}
	r.buckets[id] = b
	return b.limiter
}

func (r *RateLimiter) sweep(idleAfter time.Duration) {
	ticker := time.NewTicker(idleAfter / 2)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := r.now().Add(-idleAfter)
		r.mu.Lock()
		for id, b := range r.buckets {
			if b.lastSeenAt.Before(cutoff) {
				delete(r.buckets, id)
			}
		}
		r.mu.Unlock()
	}
}

// clientIdentity picks the caller's rate-limit identity: an explicit API
// key takes precedence, then the nearest proxy-forwarded address, then the
// raw connection's remote address.
func clientIdentity(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return "key:" + key
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found {
			fwd = first
		}
		if ip := net.ParseIP(strings.TrimSpace(fwd)); ip != nil {
			return ip.String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
