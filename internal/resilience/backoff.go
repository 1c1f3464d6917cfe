package resilience

import (
	"context"
	"math/rand"
	"time"
)

// Backoff produces exponentially growing reconnection delays with jitter.
// The sequence starts at Initial, doubles per attempt, and caps at Max;
// each returned delay is spread by ±Jitter so a fleet of clients does not
// reconnect in lockstep.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // fraction of the delay, e.g. 0.2 for ±20%

	current time.Duration
	rng     *rand.Rand
}

// NewBackoff returns a backoff with doubling growth and ±20% jitter.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{
		Initial:    initial,
		Max:        max,
		Multiplier: 2.0,
		Jitter:     0.2,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay to wait before the next attempt and advances
// the sequence.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
	}
	d := b.current

	// Advance for the next call
	next := time.Duration(float64(b.current) * b.Multiplier)
	if next > b.Max {
		next = b.Max
	}
	b.current = next

	if b.Jitter > 0 {
		// Spread within [d*(1-jitter), d*(1+jitter)]
		spread := (b.rng.Float64()*2 - 1) * b.Jitter
		d = time.Duration(float64(d) * (1 + spread))
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Reset restarts the sequence at the initial delay. Called after a
// successful connection.
func (b *Backoff) Reset() {
	b.current = 0
}

// Sleep waits for d or until the context is cancelled, whichever comes
// first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
