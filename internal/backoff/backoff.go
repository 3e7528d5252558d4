// Package backoff implements the retry delay policy used when the
// connection to the relay hub is lost.
package backoff

import "time"

const (
	// DefaultMin is the initial retry delay after a connection loss.
	DefaultMin = 5 * time.Second
	// DefaultMax caps the retry delay regardless of how many
	// consecutive failures have occurred.
	DefaultMax = time.Hour
)

// Backoff tracks the current retry delay. The delay doubles on every
// Advance and is clamped to [min, max]. Reset returns it to min.
type Backoff struct {
	min time.Duration
	max time.Duration
	cur time.Duration
}

// New creates a Backoff starting at min. Non-positive or inverted
// bounds fall back to the defaults.
func New(min, max time.Duration) *Backoff {
	if min <= 0 {
		min = DefaultMin
	}
	if max < min {
		max = DefaultMax
	}
	return &Backoff{min: min, max: max, cur: min}
}

// Default returns a Backoff with the standard 5s..1h bounds.
func Default() *Backoff {
	return New(DefaultMin, DefaultMax)
}

// Current returns the delay that should be used for the next retry.
func (b *Backoff) Current() time.Duration {
	return b.cur
}

// Advance doubles the delay, clamped to the maximum, and returns the
// new value. It is called after a retry has been scheduled so the
// delay just reported is the one actually used.
func (b *Backoff) Advance() time.Duration {
	next := b.cur * 2
	if next > b.max {
		next = b.max
	}
	b.cur = next
	return b.cur
}

// Reset returns the delay to the minimum. Called after a successful
// registration with the hub.
func (b *Backoff) Reset() {
	b.cur = b.min
}

// Min returns the configured minimum delay.
func (b *Backoff) Min() time.Duration {
	return b.min
}

// Max returns the configured maximum delay.
func (b *Backoff) Max() time.Duration {
	return b.max
}
