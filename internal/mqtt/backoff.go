package mqtt

import "time"

// Backoff yields reconnect delays that double from initial up to max
type Backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = 2 * time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max}
}

// Next returns the delay before the next attempt
func (b *Backoff) Next() time.Duration {
	if b.next == 0 {
		b.next = b.initial
	}
	d := b.next
	if d > b.max {
		d = b.max
	}
	b.next = d * 2
	return d
}

// Reset starts the sequence over after a successful connect
func (b *Backoff) Reset() {
	b.next = 0
}
