// Package store is the persistence boundary of the pipeline: the tracked
// entity registry, the audience resolver, the change-event recorder, the
// snapshot writer, and the delivery-side tables (preferences, in-app
// notifications, device tokens).
//
// Two drivers implement Store: postgres (pgxpool, production) and sqlite
// (modernc, local development and tests). Event uniqueness is enforced by
// the database in both through INSERT .. ON CONFLICT DO NOTHING RETURNING.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/streamwatch/internal/catalog"
	"github.com/albapepper/streamwatch/internal/config"
	"github.com/albapepper/streamwatch/internal/db"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown store driver")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// EventKind distinguishes the two fact types the pipeline watches.
type EventKind string

const (
	KindStreaming EventKind = "streaming"
	KindTalent    EventKind = "talent"
)

// ChangeAdded is the only change type emitted; disappearances are not events.
const ChangeAdded = "added"

// Title is a tracked title with its cached provider snapshot.
type Title struct {
	TMDBID         int
	MediaType      string
	Title          string
	Providers      []catalog.Provider
	WatchlistCount int
}

// Person is a followed person.
type Person struct {
	TMDBPersonID  int
	Name          string
	FollowerCount int
}

// ChangeEvent is the durable record that a fact was newly observed.
type ChangeEvent struct {
	ID            int64     `json:"id"`
	Kind          EventKind `json:"kind"`
	EntityID      int       `json:"entity_id"`
	MediaType     string    `json:"media_type"`
	FactID        int       `json:"fact_id"`
	FactType      string    `json:"fact_type,omitempty"`
	FactName      string    `json:"fact_name"`
	ChangeType    string    `json:"change_type"`
	NotifiedCount int       `json:"notified_user_count"`
	DetectedAt    time.Time `json:"detected_at"`
}

// EventChannel is the Postgres NOTIFY channel announcing newly recorded events.
const EventChannel = "change_event_recorded"

// EventNotice is the NOTIFY payload sent on EventChannel.
type EventNotice struct {
	Kind     EventKind `json:"kind"`
	EntityID int       `json:"entity_id"`
}

// EventKey is the uniqueness key of a ChangeEvent.
type EventKey struct {
	Kind       EventKind
	EntityID   int
	MediaType  string
	FactID     int
	FactType   string
	ChangeType string
}

// Key returns the uniqueness key of the event.
func (e ChangeEvent) Key() EventKey {
	return EventKey{
		Kind:       e.Kind,
		EntityID:   e.EntityID,
		MediaType:  e.MediaType,
		FactID:     e.FactID,
		FactType:   e.FactType,
		ChangeType: e.ChangeType,
	}
}

// Preferences are a user's notification settings. A category absent from
// Categories is treated as enabled.
type Preferences struct {
	UserID          string
	Categories      map[string]bool
	QuietHoursStart string
	QuietHoursEnd   string
	Timezone        string
}

// Disabled reports whether the user explicitly turned a category off.
func (p *Preferences) Disabled(category string) bool {
	if p == nil {
		return false
	}
	enabled, ok := p.Categories[category]
	return ok && !enabled
}

// InAppNotification is one row of the in-app notification log.
type InAppNotification struct {
	ID        uuid.UUID
	UserID    string
	Category  string
	Title     string
	Body      string
	ImageURL  string
	Data      map[string]string
	CreatedAt time.Time
}

// --------------------------------------------------------------------------
// Interface
// --------------------------------------------------------------------------

// Store is the full persistence surface. Components depend on the narrower
// interfaces they declare themselves.
type Store interface {
	// Entity registry
	HotTitles(ctx context.Context, limit int) ([]Title, error)
	FollowedPersons(ctx context.Context, limit int) ([]Person, error)
	ReplaceProviderSnapshot(ctx context.Context, t Title, providers []catalog.Provider) error
	KnownCredits(ctx context.Context, personID int) (map[catalog.CreditKey]struct{}, error)

	// Audience resolver
	StreamingAudience(ctx context.Context, t Title, p catalog.Provider) ([]string, error)
	TalentAudience(ctx context.Context, p Person) ([]string, error)

	// Event recorder
	RecordEvent(ctx context.Context, e ChangeEvent) (bool, error)
	UpdateNotifiedCount(ctx context.Context, key EventKey, count int) error
	RecentEvents(ctx context.Context, kind EventKind, limit int) ([]ChangeEvent, error)

	// Delivery side
	Preferences(ctx context.Context, userID string) (*Preferences, error)
	InsertNotification(ctx context.Context, n InAppNotification) error
	DeviceTokens(ctx context.Context, userID string) ([]string, error)
	DeleteDeviceTokens(ctx context.Context, tokens []string) error
	PurgeNotifications(ctx context.Context, before time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open connects the driver selected in cfg.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("Database connected",
			"driver", cfg.StoreDriver,
			"min_conns", cfg.DBPoolMinConns,
			"max_conns", cfg.DBPoolMaxConns)
		return NewPostgres(pool), nil
	case config.DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("Database connected", "driver", cfg.StoreDriver, "path", cfg.SQLitePath)
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.StoreDriver)
	}
}

// preferencesFromRow turns a preferences row decoded as a JSON object into
// Preferences. Every boolean column is a category switch.
func preferencesFromRow(userID string, row map[string]any) *Preferences {
	p := &Preferences{UserID: userID, Categories: make(map[string]bool)}
	for k, v := range row {
		switch k {
		case "quiet_hours_start":
			p.QuietHoursStart, _ = v.(string)
		case "quiet_hours_end":
			p.QuietHoursEnd, _ = v.(string)
		case "timezone":
			p.Timezone, _ = v.(string)
		default:
			if b, ok := v.(bool); ok {
				p.Categories[k] = b
			}
		}
	}
	return p
}
