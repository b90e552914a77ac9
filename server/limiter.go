package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultLoginRate  = rate.Limit(5.0 / 60.0)
	DefaultLoginBurst = 5
	limiterTTL        = 15 * time.Minute
)

// LoginLimiter throttles login attempts per client IP and identifier pair.
type LoginLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*loginBucket
	now     func() time.Time
	swept   time.Time
}

type loginBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewLoginLimiter(limit rate.Limit, burst int) *LoginLimiter {
	if limit <= 0 {
		limit = DefaultLoginRate
	}
	if burst <= 0 {
		burst = DefaultLoginBurst
	}
	return &LoginLimiter{
		limit:   limit,
		burst:   burst,
		buckets: make(map[string]*loginBucket),
		now:     time.Now,
	}
}

// Allow consumes one attempt for the pair.
func (l *LoginLimiter) Allow(ip, identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	key := ip + "|" + normalizeIdentifier(identifier)
	b, ok := l.buckets[key]
	if !ok {
		b = &loginBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Reset forgets the pair, called after a successful login.
func (l *LoginLimiter) Reset(ip, identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, ip+"|"+normalizeIdentifier(identifier))
}

// sweep must be called with l.mu held.
func (l *LoginLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < time.Minute {
		return
	}
	l.swept = now
	for key, b := range l.buckets {
		if now.Sub(b.seen) > limiterTTL {
			delete(l.buckets, key)
		}
	}
}
