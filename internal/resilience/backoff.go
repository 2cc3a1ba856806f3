package resilience

import (
	"context"
	"time"
)

// Backoff yields exponentially growing delays capped at Max. The zero value
// is not usable; build one with [NewBackoff].
//
// Backoff is not safe for concurrent use. Each retry loop owns its own.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

// NewBackoff returns a Backoff starting at initial and doubling up to ceiling.
// Non-positive values default to 500ms and 10s.
func NewBackoff(initial, ceiling time.Duration) *Backoff {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if ceiling <= 0 {
		ceiling = 10 * time.Second
	}
	if ceiling < initial {
		ceiling = initial
	}
	return &Backoff{initial: initial, max: ceiling, next: initial}
}

// Next returns the current delay and advances to the following one.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// Reset restarts the sequence at the initial delay.
func (b *Backoff) Reset() { b.next = b.initial }

// Wait sleeps for [Backoff.Next] or until ctx is done, returning ctx.Err()
// in the latter case.
func (b *Backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
