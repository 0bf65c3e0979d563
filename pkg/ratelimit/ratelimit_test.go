package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fixedClock lets tests drive refill deterministically.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(rate, burst float64) (*Limiter, *fixedClock) {
	clock := &fixedClock{t: time.Unix(1700000000, 0)}
	l := NewLimiter(rate, burst)
	l.now = clock.now
	return l, clock
}

func TestBurstThenReject(t *testing.T) {
	l, _ := newTestLimiter(5, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("k"), "request %d within burst", i+1)
	}
	assert.False(t, l.Allow("k"), "sixth rapid request is rejected")
}

func TestRefillOverTime(t *testing.T) {
	l, clock := newTestLimiter(5, 5)

	for i := 0; i < 5; i++ {
		l.Allow("k")
	}
	assert.False(t, l.Allow("k"))

	// 5 rps: one token back after 200ms.
	clock.advance(200 * time.Millisecond)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}

func TestRefillCappedAtBurst(t *testing.T) {
	l, clock := newTestLimiter(10, 3)

	clock.advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("k"))
	}
	assert.False(t, l.Allow("k"))
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 1)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestPerKeyOverride(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	l.SetKeyLimits("big", 100, 10)

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("big"))
	}
	assert.False(t, l.Allow("big"))

	assert.True(t, l.Allow("small"))
	assert.False(t, l.Allow("small"))
}

func TestRejectionAdvancesState(t *testing.T) {
	l, clock := newTestLimiter(2, 1)

	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	// Fractional refill across several rejected admissions still adds up.
	clock.advance(250 * time.Millisecond)
	assert.False(t, l.Allow("k"))
	clock.advance(250 * time.Millisecond)
	assert.True(t, l.Allow("k"))
}
