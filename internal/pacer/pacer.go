// Package pacer spaces consecutive calls to the external catalog by a fixed
// interval. It is not adaptive and does no backoff: one interval per run,
// chosen to stay under the catalog's shared rate ceiling.
package pacer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the spacing between catalog calls.
const DefaultInterval = 250 * time.Millisecond

// Pacer enforces a minimum delay before each catalog call.
type Pacer struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// New creates a pacer. The initial token is drained so the very first Wait
// also waits a full interval.
func New(interval time.Duration) *Pacer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	l := rate.NewLimiter(rate.Every(interval), 1)
	l.Allow()
	return &Pacer{interval: interval, limiter: l}
}

// Wait blocks until the next call may be issued or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}
	return nil
}

// Interval returns the configured spacing.
func (p *Pacer) Interval() time.Duration { return p.interval }
