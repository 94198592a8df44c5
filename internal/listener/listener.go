// Package listener consumes Postgres NOTIFY messages announcing newly
// recorded change events. It holds a dedicated pgx connection (not from the
// pool) so that runs made by another process, such as the checker CLI, still
// reach this process's read cache.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/streamwatch/internal/store"
)

const (
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Handler receives each valid notice.
type Handler func(store.EventNotice)

// Start opens a dedicated connection and listens on store.EventChannel. It
// reconnects automatically on connection loss. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, handle Handler, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, handle, logger)
		if ctx.Err() != nil {
			logger.Info("Event listener stopped")
			return
		}

		logger.Error("Event listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

func listenLoop(ctx context.Context, dbURL string, handle Handler, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{store.EventChannel}.Sanitize()); err != nil {
		return fmt.Errorf("LISTEN %s: %w", store.EventChannel, err)
	}
	logger.Info("Event listener connected", "channel", store.EventChannel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		notice, err := ParseNotice(n.Payload)
		if err != nil {
			logger.Warn("Ignoring malformed event notice", "payload", n.Payload, "error", err)
			continue
		}
		logger.Debug("Event notice received", "kind", notice.Kind, "entity_id", notice.EntityID)
		handle(notice)
	}
}

// ParseNotice decodes and validates a NOTIFY payload.
func ParseNotice(payload string) (store.EventNotice, error) {
	var n store.EventNotice
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return n, fmt.Errorf("decode notice: %w", err)
	}
	if n.Kind != store.KindStreaming && n.Kind != store.KindTalent {
		return n, fmt.Errorf("unknown event kind %q", n.Kind)
	}
	return n, nil
}
