package pacer

import (
	"context"
	"testing"
	"time"
)

func TestWaitSpacesCalls(t *testing.T) {
	t.Parallel()

	const interval = 30 * time.Millisecond
	p := New(interval)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(t.Context()); err != nil {
			t.Fatalf("Wait() error: %v", err)
		}
	}
	elapsed := time.Since(start)

	// Three waits, each preceded by a full interval (the first included).
	if floor := 3*interval - 5*time.Millisecond; elapsed < floor {
		t.Errorf("3 waits took %v, want at least %v", elapsed, floor)
	}
}

func TestWaitCancelled(t *testing.T) {
	t.Parallel()

	p := New(time.Hour)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := p.Wait(ctx); err == nil {
		t.Fatal("Wait() returned nil on a cancelled context")
	}
}

func TestDefaultInterval(t *testing.T) {
	t.Parallel()

	if got := New(0).Interval(); got != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", got, DefaultInterval)
	}
}
