// Package ratelimit keeps one token bucket per key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Limiter struct {
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
	lookups  uint64
	now      func() time.Time
}

// New returns a limiter allowing rps events per second per key with the given burst.
// A non-positive rps disables limiting.
func New(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		rps:      limit,
		burst:    burst,
		ttl:      10 * time.Minute,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

func (l *Limiter) get(key string) *rate.Limiter {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// evict idle visitors every few thousand lookups
	l.lookups++
	if l.lookups >= 5000 {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) >= l.ttl {
				delete(l.visitors, k)
			}
		}
		l.lookups = 0
	}

	if v, ok := l.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}

	lim := rate.NewLimiter(l.rps, l.burst)
	l.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
