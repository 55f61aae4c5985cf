package control

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles requests per remote address, per spec.md §6's implied
// resource protection for an online debug endpoint reachable over TCP.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

// NewLimiter builds a Limiter; ratePerSec <= 0 disables throttling
// entirely (Allow always returns true).
func NewLimiter(ratePerSec float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(ratePerSec),
		burst:    burst,
	}
}

// Allow reports whether a request from addr may proceed right now,
// consuming one token if so.
func (l *Limiter) Allow(addr string) bool {
	if l.r <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[addr]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[addr] = lim
	}
	return lim.Allow()
}
