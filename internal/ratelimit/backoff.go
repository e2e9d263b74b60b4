package ratelimit

import (
	"sync"
	"time"
)

// Default backoff values.
const (
	DefaultBaseBackoff = 2 * time.Second
	DefaultMaxBackoff  = 2 * time.Minute
)

// Backoff grows an extra pause after consecutive throttled responses and
// resets once a request succeeds. It is safe for concurrent use.
type Backoff struct {
	base             time.Duration
	max              time.Duration
	current          time.Duration
	consecutiveFails int
	mu               sync.Mutex
}

// NewBackoff creates a backoff. Zero values use the defaults.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	if base > max {
		base = max
	}
	return &Backoff{base: base, max: max}
}

// RecordSuccess clears the backoff
func (b *Backoff) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFails = 0
	b.current = 0
}

// RecordFailure doubles the backoff, starting at the base delay and capped at the max
func (b *Backoff) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFails++
	next := b.base
	for i := 1; i < b.consecutiveFails; i++ {
		next *= 2
		if next >= b.max {
			next = b.max
			break
		}
	}
	b.current = next
}

// Delay returns the current extra pause
func (b *Backoff) Delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// ConsecutiveFailures returns the number of throttled responses since the last success
func (b *Backoff) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFails
}
