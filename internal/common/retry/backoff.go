// Package retry holds the delay policies used for broker reconnects and consumer restarts.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff handles exponential backoff calculations with jitter.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	Jitter    float64 // 0.0-1.0
}

// DefaultBackoff returns the consumer restart policy: 1s doubling up to one minute.
func DefaultBackoff() *Backoff {
	return &Backoff{
		BaseDelay: 1 * time.Second,
		MaxDelay:  1 * time.Minute,
		Factor:    2.0,
		Jitter:    0.1,
	}
}

// Fixed returns a policy that always waits d.
func Fixed(d time.Duration) *Backoff {
	return &Backoff{BaseDelay: d, MaxDelay: d, Factor: 1}
}

// NextDelay calculates the delay before retry number attempt (0-based).
// The result never exceeds MaxDelay, jitter included.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}

	delay := float64(b.BaseDelay) * math.Pow(factor, float64(attempt))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}

	if b.Jitter > 0 {
		jitterRange := delay * b.Jitter
		delay += (rand.Float64() * 2 * jitterRange) - jitterRange
	}

	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
