// internal/middleware/ratelimit.go

package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultLimiterExpiry is how long an idle key keeps its bucket.
const DefaultLimiterExpiry = time.Hour

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per key (client address, connection id) and
// forgets buckets that have been idle for Expiry.
type RateLimiter struct {
	Rate   rate.Limit
	Burst  int
	Expiry time.Duration
	Logger *logrus.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter allows perSecond events per key with bursts of burst.
func NewRateLimiter(perSecond float64, burst int, logger *logrus.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RateLimiter{
		Rate:    rate.Limit(perSecond),
		Burst:   burst,
		Expiry:  DefaultLimiterExpiry,
		Logger:  logger,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
}

// Allow reports whether key may proceed now, consuming a token if so.
func (l *RateLimiter) Allow(key string) bool {
	return l.AllowAt(key, time.Now())
}

// AllowAt is Allow with an explicit clock.
func (l *RateLimiter) AllowAt(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.Rate, l.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	if !allowed {
		l.Logger.WithField("key", key).Debug("rate limit exceeded")
	}
	return allowed
}

// Forget drops the bucket for key, e.g. when a connection closes.
func (l *RateLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Len is the number of tracked keys.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Cleanup removes buckets idle since before now-Expiry and returns how many were removed.
func (l *RateLimiter) Cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.Expiry {
			delete(l.buckets, key)
			removed++
		}
	}
	if removed > 0 {
		l.Logger.WithField("removed", removed).Debug("expired rate limit buckets")
	}
	return removed
}

// StartCleanup sweeps idle buckets every interval until Stop is called.
func (l *RateLimiter) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				l.Cleanup(now)
			case <-l.stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup loop.
func (l *RateLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// RateLimitMiddleware rejects requests with 429 once the client's address runs out of tokens.
func RateLimitMiddleware(l *RateLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP keys on the connection's peer address. Forwarding headers are client-controlled
// and ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
