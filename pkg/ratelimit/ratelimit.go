// Package ratelimit implements the per-tenant admission gate: a
// process-local token bucket keyed by API key. There is no cross-process
// coordination; each gateway instance enforces its own budget.
package ratelimit

import (
	"sync"
	"time"
)

// bucket holds per-key state. Tokens are fractional so refill at low rates
// accumulates correctly between admissions.
type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter admits or rejects requests per key. Rate and burst may be set per
// key; keys without overrides use the defaults.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	defaultRate  float64
	defaultBurst float64

	rates  map[string]float64
	bursts map[string]float64

	now func() time.Time
}

// NewLimiter creates a limiter with installation-wide defaults.
func NewLimiter(rate, burst float64) *Limiter {
	return &Limiter{
		buckets:      make(map[string]*bucket),
		defaultRate:  rate,
		defaultBurst: burst,
		rates:        make(map[string]float64),
		bursts:       make(map[string]float64),
		now:          time.Now,
	}
}

// SetKeyLimits overrides rate and burst for one key.
func (l *Limiter) SetKeyLimits(key string, rate, burst float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rates[key] = rate
	l.bursts[key] = burst
}

// Allow performs one admission decision for key. On rejection the bucket
// state still advances (tokens refilled, timestamp updated) so a steady
// stream of rejected requests does not forfeit accrued tokens.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rate, burst := l.limitsFor(key)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: burst, last: now}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *Limiter) limitsFor(key string) (rate, burst float64) {
	rate, burst = l.defaultRate, l.defaultBurst
	if r, ok := l.rates[key]; ok {
		rate = r
	}
	if b, ok := l.bursts[key]; ok {
		burst = b
	}
	return rate, burst
}
