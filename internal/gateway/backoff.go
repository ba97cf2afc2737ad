package gateway

import (
	"math"
	"math/rand"
	"time"
)

// Backoff produces capped exponential reconnect delays with full jitter to
// spread simultaneous reconnects apart.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64

	attempt int
}

// DefaultBackoff returns the reconnect policy used by sessions: 1s doubling
// up to 2 minutes.
func DefaultBackoff() *Backoff {
	return &Backoff{Min: time.Second, Max: 2 * time.Minute, Factor: 2}
}

// Next returns the delay for the current attempt and advances the counter.
// The returned value is jittered within [base/2, base).
func (b *Backoff) Next() time.Duration {
	base := float64(b.Min) * math.Pow(b.Factor, float64(b.attempt))
	if base > float64(b.Max) {
		base = float64(b.Max)
	}
	if b.attempt < math.MaxInt32 {
		b.attempt++
	}
	half := base / 2
	return time.Duration(half + rand.Float64()*half)
}

// Reset restarts the progression, called once a connection reaches Ready.
func (b *Backoff) Reset() {
	b.attempt = 0
}
