package gateway

import (
	"context"
	"testing"
	"time"
)

// TestPacerSpacing tests that consecutive identifies wait out the spacing delay
func TestPacerSpacing(t *testing.T) {
	t.Parallel()

	p := NewPacer(1, 100*time.Millisecond)
	ctx := context.Background()

	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	start := time.Now()
	p.Release()

	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("second acquire after %v, want >= 100ms", elapsed)
	}
}

// TestPacerConcurrency tests that multiple slots are available at once
func TestPacerConcurrency(t *testing.T) {
	t.Parallel()

	p := NewPacer(2, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}

	// the third must block until a slot frees
	if err := p.Acquire(ctx); err == nil {
		t.Fatal("third Acquire() should have blocked until context deadline")
	}
}

// TestPacerAcquireCancelled tests that a cancelled context aborts the wait
func TestPacerAcquireCancelled(t *testing.T) {
	t.Parallel()

	p := NewPacer(1, time.Minute)
	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Acquire(ctx); err != context.Canceled {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

// TestPacerZeroDelay tests immediate slot return without spacing
func TestPacerZeroDelay(t *testing.T) {
	t.Parallel()

	p := NewPacer(1, 0)
	ctx := context.Background()

	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	p.Release()
	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("re-Acquire() error = %v", err)
	}
}
