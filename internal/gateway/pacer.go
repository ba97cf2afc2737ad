package gateway

import (
	"context"
	"time"
)

// Pacer enforces the identify-pacing contract: at most maxConcurrency
// identify handshakes in flight at once, each slot handed back only after
// the inter-identify spacing delay has elapsed. Resuming sessions bypass
// the pacer entirely.
type Pacer struct {
	slots chan struct{}
	delay time.Duration
}

// NewPacer builds a pacer with the given concurrency and spacing. A
// non-positive concurrency is treated as 1.
func NewPacer(maxConcurrency int, delay time.Duration) *Pacer {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	p := &Pacer{
		slots: make(chan struct{}, maxConcurrency),
		delay: delay,
	}
	for i := 0; i < maxConcurrency; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Acquire blocks until an identify slot is free or ctx is cancelled.
func (p *Pacer) Acquire(ctx context.Context) error {
	select {
	case <-p.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns the slot after the spacing delay. Called once the
// identify has completed, whether it succeeded or not.
func (p *Pacer) Release() {
	if p.delay <= 0 {
		p.slots <- struct{}{}
		return
	}
	time.AfterFunc(p.delay, func() {
		p.slots <- struct{}{}
	})
}
