// Package maintenance runs periodic background tasks: purging old in-app
// notifications and evicting expired cache entries.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/clock"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	CleanupInterval time.Duration // In-app notification purge
	Retention       time.Duration // Age past which notifications are purged
	EvictInterval   time.Duration // Expired cache entries
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		CleanupInterval: time.Hour,
		Retention:       90 * 24 * time.Hour,
		EvictInterval:   5 * time.Minute,
	}
}

// Purger deletes in-app notifications created before a cutoff.
type Purger interface {
	PurgeNotifications(ctx context.Context, before time.Time) (int64, error)
}

// Evicter drops expired cache entries.
type Evicter interface {
	Evict() int
}

// Start launches all configured maintenance loops. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, p Purger, e Evicter, cfg Config, clk clock.Clock, logger *slog.Logger) {
	if clk == nil {
		clk = clock.WallClock
	}
	logger.Info("Maintenance started",
		"cleanup", cfg.CleanupInterval,
		"retention", cfg.Retention,
		"evict", cfg.EvictInterval)

	if cfg.CleanupInterval > 0 && cfg.Retention > 0 && p != nil {
		go runLoop(ctx, clk, cfg.CleanupInterval, func() { Cleanup(ctx, p, cfg.Retention, clk, logger) })
	}
	if cfg.EvictInterval > 0 && e != nil {
		go runLoop(ctx, clk, cfg.EvictInterval, func() {
			if n := e.Evict(); n > 0 {
				logger.Debug("Evicted expired cache entries", "count", n)
			}
		})
	}

	<-ctx.Done()
	logger.Info("Maintenance stopped")
}

func runLoop(ctx context.Context, clk clock.Clock, interval time.Duration, fn func()) {
	for {
		select {
		case <-clk.After(interval):
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Cleanup purges in-app notifications older than retention.
func Cleanup(ctx context.Context, p Purger, retention time.Duration, clk clock.Clock, logger *slog.Logger) int64 {
	n, err := p.PurgeNotifications(ctx, clk.Now().Add(-retention))
	if err != nil {
		logger.Warn("Cleanup: failed to purge old notifications", "error", err)
		return 0
	}
	if n > 0 {
		logger.Info("Cleanup: purged old notifications", "count", n)
	}
	return n
}
