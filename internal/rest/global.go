package rest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// GlobalLimiter is the gate shared by every bucket: a steady-state token
// bucket for the aggregate request ceiling, plus a hard lock engaged when
// the server reports a global quota breach. While locked, no bucket
// dispatches anything, whatever its own counters say.
type GlobalLimiter struct {
	limiter *rate.Limiter

	mu    sync.Mutex
	until time.Time
}

// NewGlobalLimiter builds the gate. perSecond is the steady request ceiling;
// a non-positive value disables the steady limiter and keeps only the
// 429-driven lock.
func NewGlobalLimiter(perSecond rate.Limit, burst int) *GlobalLimiter {
	g := &GlobalLimiter{}
	if perSecond > 0 {
		if burst <= 0 {
			burst = int(perSecond)
		}
		g.limiter = rate.NewLimiter(perSecond, burst)
	}
	return g
}

// Wait blocks until the gate is open and a steady-state token is available,
// or ctx is cancelled.
func (g *GlobalLimiter) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		until := g.until
		g.mu.Unlock()

		d := time.Until(until)
		if d <= 0 {
			break
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

// LockFor closes the gate for the given duration. Overlapping locks keep
// the latest expiry.
func (g *GlobalLimiter) LockFor(d time.Duration) {
	if d <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if t := time.Now().Add(d); t.After(g.until) {
		g.until = t
	}
}

// Locked reports whether the hard gate is currently engaged.
func (g *GlobalLimiter) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Now().Before(g.until)
}
