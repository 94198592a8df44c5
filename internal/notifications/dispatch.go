package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/streamwatch/internal/delivery"
	"github.com/albapepper/streamwatch/internal/metrics"
)

// Deliverer delivers one notification to one user.
type Deliverer interface {
	Deliver(ctx context.Context, req delivery.Request) (delivery.Result, error)
}

// Dispatcher fans a message out to recipients one at a time. A failed
// recipient is logged and left out of the tally; nothing is retried.
type Dispatcher struct {
	gate    Deliverer
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher. timeout bounds each recipient's
// delivery; zero means no per-recipient bound beyond ctx.
func NewDispatcher(gate Deliverer, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{gate: gate, timeout: timeout, logger: logger}
}

// Dispatch delivers msg to every recipient and returns how many deliveries
// completed without error. A preference skip counts as completed.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []string, msg Message) int {
	sent := 0
	for _, userID := range recipients {
		if err := d.deliverOne(ctx, userID, msg); err != nil {
			d.logger.Warn("Delivery failed",
				"user_id", userID, "category", msg.Category, "error", err)
			metrics.DeliveryFailures.WithLabelValues(msg.Category).Inc()
			continue
		}
		sent++
	}
	metrics.NotificationsSent.WithLabelValues(msg.Category).Add(float64(sent))
	return sent
}

func (d *Dispatcher) deliverOne(ctx context.Context, userID string, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	res, err := d.gate.Deliver(ctx, delivery.Request{
		UserID:   userID,
		Category: msg.Category,
		Title:    msg.Title,
		Body:     msg.Body,
		ImageURL: msg.ImageURL,
		Data:     msg.Data,
	})
	if err != nil {
		return err
	}
	if res.SkippedReason != "" {
		d.logger.Debug("Delivery skipped", "user_id", userID, "reason", res.SkippedReason)
	}
	return nil
}
