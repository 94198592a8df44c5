// Package delivery is the per-recipient delivery gate: preference check,
// quiet-hours hook, in-app log, and multi-device push fan-out.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/albapepper/streamwatch/internal/metrics"
	"github.com/albapepper/streamwatch/internal/push"
	"github.com/albapepper/streamwatch/internal/store"
)

// Skip reasons reported in Result.SkippedReason.
const (
	SkippedDisabled   = "disabled_by_user"
	SkippedQuietHours = "quiet_hours"
)

// ErrInvalidRequest is returned for a request missing a required field.
var ErrInvalidRequest = errors.New("invalid delivery request")

// Request is one notification for one user.
type Request struct {
	UserID   string            `json:"user_id"`
	Category string            `json:"category"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	ImageURL string            `json:"image_url,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// Validate checks the required fields.
func (r Request) Validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	case r.Category == "":
		return fmt.Errorf("%w: category is required", ErrInvalidRequest)
	case r.Title == "" || r.Body == "":
		return fmt.Errorf("%w: title and body are required", ErrInvalidRequest)
	}
	return nil
}

// Result is what the gate did for one request.
type Result struct {
	Sent          int    `json:"sent"`
	Failed        int    `json:"failed"`
	InApp         bool   `json:"in_app"`
	SkippedReason string `json:"skipped_reason,omitempty"`
}

// Store is the persistence the gate needs.
type Store interface {
	Preferences(ctx context.Context, userID string) (*store.Preferences, error)
	InsertNotification(ctx context.Context, n store.InAppNotification) error
	DeviceTokens(ctx context.Context, userID string) ([]string, error)
	DeleteDeviceTokens(ctx context.Context, tokens []string) error
}

// Pusher sends one message to many device tokens.
type Pusher interface {
	SendMulticast(ctx context.Context, tokens []string, msg push.Message) (*push.BatchResult, error)
}

// Gate delivers notifications to a single user.
type Gate struct {
	store      Store
	pusher     Pusher
	quietHours QuietHoursFunc
	clock      clock.Clock
	logger     *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithQuietHours installs a quiet-hours policy. The default is NeverQuiet.
func WithQuietHours(fn QuietHoursFunc) Option {
	return func(g *Gate) {
		if fn != nil {
			g.quietHours = fn
		}
	}
}

// WithClock sets the clock used for quiet hours and timestamps.
func WithClock(c clock.Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// NewGate creates a gate. pusher may be nil, in which case only the in-app
// channel is used.
func NewGate(st Store, pusher Pusher, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		store:      st,
		pusher:     pusher,
		quietHours: NeverQuiet,
		clock:      clock.WallClock,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Deliver runs one request through the gate. An error means the recipient
// should be counted as not delivered; a skip is not an error.
func (g *Gate) Deliver(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	log := g.logger.With("user_id", req.UserID, "category", req.Category)

	// A failed lookup falls through to defaults.
	prefs, err := g.store.Preferences(ctx, req.UserID)
	if err != nil {
		log.Warn("Preferences lookup failed, using defaults", "error", err)
		prefs = nil
	}
	if prefs.Disabled(req.Category) {
		log.Debug("Notification skipped, category disabled")
		return Result{SkippedReason: SkippedDisabled}, nil
	}

	now := g.clock.Now()
	err = g.store.InsertNotification(ctx, store.InAppNotification{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Category:  req.Category,
		Title:     req.Title,
		Body:      req.Body,
		ImageURL:  req.ImageURL,
		Data:      req.Data,
		CreatedAt: now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("store in-app notification: %w", err)
	}
	res := Result{InApp: true}

	if prefs != nil && g.quietHours(prefs, now) {
		log.Debug("Push suppressed for quiet hours")
		res.SkippedReason = SkippedQuietHours
		return res, nil
	}
	if g.pusher == nil {
		return res, nil
	}

	tokens, err := g.store.DeviceTokens(ctx, req.UserID)
	if err != nil {
		return res, fmt.Errorf("get device tokens: %w", err)
	}
	if len(tokens) == 0 {
		log.Debug("No devices registered")
		return res, nil
	}

	batch, err := g.pusher.SendMulticast(ctx, tokens, push.Message{
		Title:    req.Title,
		Body:     req.Body,
		ImageURL: req.ImageURL,
		Data:     req.Data,
	})
	if err != nil {
		return res, fmt.Errorf("push: %w", err)
	}
	res.Sent = batch.Success
	res.Failed = batch.Failure
	metrics.PushTokens.WithLabelValues("success").Add(float64(batch.Success))
	metrics.PushTokens.WithLabelValues("failure").Add(float64(batch.Failure))

	if stale := batch.Stale(); len(stale) > 0 {
		if err := g.store.DeleteDeviceTokens(ctx, stale); err != nil {
			log.Warn("Stale token cleanup failed", "tokens", len(stale), "error", err)
		} else {
			log.Info("Removed stale device tokens", "tokens", len(stale))
		}
	}
	return res, nil
}
