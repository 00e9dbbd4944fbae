package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/logging"
)

// Defaults for the ask and reindex quotas, applied per route and client IP.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// kindRateLimited is the errorResponse kind of a 429.
const kindRateLimited = "rate_limited"

// quotaIdleTTL is how long an unused bucket survives before eviction.
const quotaIdleTTL = 5 * time.Minute

// quotaKey identifies one token bucket. Each route has its own budget so a
// client running a long reindex loop does not starve its own questions.
type quotaKey struct {
	route string
	ip    string
}

type quota struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out one token bucket per route and client IP.
type rateLimiter struct {
	mu     sync.Mutex
	quotas map[quotaKey]*quota
	rps    rate.Limit
	burst  int
	// onReject is called with the route name of every rejected request.
	onReject func(route string)
}

// newRateLimiter builds a rateLimiter and starts its eviction loop, which
// runs until the returned stop function is called. onReject may be nil.
func newRateLimiter(rps float64, burst int, onReject func(route string)) (*rateLimiter, func()) {
	if onReject == nil {
		onReject = func(string) {}
	}
	rl := &rateLimiter{
		quotas:   make(map[quotaKey]*quota),
		rps:      rate.Limit(rps),
		burst:    burst,
		onReject: onReject,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// allow takes one token from the (route, ip) bucket.
func (rl *rateLimiter) allow(route, ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := quotaKey{route: route, ip: ip}
	q, ok := rl.quotas[key]
	if !ok {
		q = &quota{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.quotas[key] = q
	}
	q.lastSeen = now
	return q.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

// evict drops buckets idle for longer than quotaIdleTTL.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-quotaIdleTTL)
	for key, q := range rl.quotas {
		if q.lastSeen.Before(cutoff) {
			delete(rl.quotas, key)
		}
	}
}

// size reports the number of live buckets.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.quotas)
}

// retryAfter is the whole number of seconds until one token refills.
func (rl *rateLimiter) retryAfter() int {
	if rl.rps <= 0 {
		return 60
	}
	return max(1, int(math.Ceil(1/float64(rl.rps))))
}

// limit wraps next with the quota for route. Over-quota requests get a JSON
// 429 with a Retry-After header.
func (rl *rateLimiter) limit(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if rl.allow(route, ip, time.Now()) {
			next.ServeHTTP(w, r)
			return
		}

		rl.onReject(route)
		log := logging.FromContext(r.Context())
		log.Warn("rate limit exceeded",
			slog.String("route", route),
			slog.String("ip", ip),
		)
		w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
		writeError(w, log, http.StatusTooManyRequests,
			"too many "+route+" requests, retry later", kindRateLimited)
	})
}

// clientIP is the host part of RemoteAddr. X-Forwarded-For is ignored; the
// server binds to loopback by default and is not meant to sit behind a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
