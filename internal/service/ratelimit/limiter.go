package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter is a token-bucket limiter keyed by source name. Each source
// registers its budget once; Allow consumes one token per fetch so
// manual refresh spam cannot exceed an upstream's rate limit.
type Limiter struct {
	mu sync.Mutex
	m  map[string]*bucket
}

func New() *Limiter { return &Limiter{m: make(map[string]*bucket)} }

// Configure registers (or replaces) the budget for key.
func (l *Limiter) Configure(key string, capacity, refillPerSec float64) {
	l.mu.Lock()
	l.m[key] = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: time.Now()}
	l.mu.Unlock()
}

// Allow returns true if one token can be consumed for key.
// Unregistered keys are unlimited.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		return true
	}
	// refill
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}
