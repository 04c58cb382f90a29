package http

import (
	"sync"
	"time"
)

// refreshPerMinute bounds OAuth refresh exchanges so a misbehaving
// operator cannot hammer the provider's token endpoint.
const refreshPerMinute = 10

// rateLimiter is a fixed-window counter. A zero limit allows everything.
type rateLimiter struct {
	mu          sync.Mutex
	limit       int
	counter     int
	windowStart time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit, windowStart: time.Now()}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
