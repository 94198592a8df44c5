package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/streamwatch/internal/catalog"
	"github.com/albapepper/streamwatch/internal/db"
)

// Postgres is the production Store backed by pgxpool and prepared statements.
type Postgres struct {
	pool *db.Pool
}

// NewPostgres wraps a connected pool.
func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// HotTitles returns the most-watchlisted titles to poll this run.
func (s *Postgres) HotTitles(ctx context.Context, limit int) ([]Title, error) {
	rows, err := s.pool.Query(ctx, "hot_titles", limit)
	if err != nil {
		return nil, fmt.Errorf("get hot titles: %w", err)
	}
	defer rows.Close()

	var titles []Title
	for rows.Next() {
		var t Title
		var raw []byte
		if err := rows.Scan(&t.TMDBID, &t.MediaType, &t.Title, &raw, &t.WatchlistCount); err != nil {
			return nil, fmt.Errorf("scan hot title: %w", err)
		}
		if t.Providers, err = decodeProviders(raw); err != nil {
			return nil, fmt.Errorf("decode snapshot for %d: %w", t.TMDBID, err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// FollowedPersons returns the most-followed persons to poll this run.
func (s *Postgres) FollowedPersons(ctx context.Context, limit int) ([]Person, error) {
	rows, err := s.pool.Query(ctx, "followed_persons", limit)
	if err != nil {
		return nil, fmt.Errorf("get followed persons: %w", err)
	}
	defer rows.Close()

	var persons []Person
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.TMDBPersonID, &p.Name, &p.FollowerCount); err != nil {
			return nil, fmt.Errorf("scan followed person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// ReplaceProviderSnapshot overwrites the cached provider list of a title.
func (s *Postgres) ReplaceProviderSnapshot(ctx context.Context, t Title, providers []catalog.Provider) error {
	raw, err := encodeProviders(providers)
	if err != nil {
		return err
	}
	var arg any
	if raw != nil {
		arg = raw
	}
	if _, err := s.pool.Exec(ctx, "replace_provider_snapshot", t.TMDBID, t.MediaType, arg); err != nil {
		return fmt.Errorf("replace provider snapshot: %w", err)
	}
	return nil
}

// KnownCredits returns the credit keys already recorded for a person.
func (s *Postgres) KnownCredits(ctx context.Context, personID int) (map[catalog.CreditKey]struct{}, error) {
	rows, err := s.pool.Query(ctx, "known_credits", personID)
	if err != nil {
		return nil, fmt.Errorf("get known credits: %w", err)
	}
	defer rows.Close()

	known := make(map[catalog.CreditKey]struct{})
	for rows.Next() {
		var k catalog.CreditKey
		if err := rows.Scan(&k.ContentID, &k.MediaType); err != nil {
			return nil, fmt.Errorf("scan known credit: %w", err)
		}
		known[k] = struct{}{}
	}
	return known, rows.Err()
}

// StreamingAudience returns users to tell that a title is on a new provider.
func (s *Postgres) StreamingAudience(ctx context.Context, t Title, p catalog.Provider) ([]string, error) {
	return s.userIDs(ctx, "streaming_audience", t.TMDBID, t.MediaType, p.ID, p.Type)
}

// TalentAudience returns the followers of a person.
func (s *Postgres) TalentAudience(ctx context.Context, p Person) ([]string, error) {
	return s.userIDs(ctx, "talent_audience", p.TMDBPersonID)
}

func (s *Postgres) userIDs(ctx context.Context, stmt string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", stmt, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordEvent inserts the event unless its key already exists. It reports
// true only for the call that created the row.
func (s *Postgres) RecordEvent(ctx context.Context, e ChangeEvent) (bool, error) {
	var row pgx.Row
	switch e.Kind {
	case KindStreaming:
		row = s.pool.QueryRow(ctx, "record_streaming_event",
			e.EntityID, e.MediaType, e.FactID, e.FactName, e.FactType, e.ChangeType)
	case KindTalent:
		row = s.pool.QueryRow(ctx, "record_talent_event",
			e.EntityID, e.FactID, e.MediaType, e.FactName, e.ChangeType)
	default:
		return false, fmt.Errorf("record event: unknown kind %q", e.Kind)
	}

	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("record %s event: %w", e.Kind, err)
	}

	// Cache hint for listeners in other processes; failure is ignored.
	if payload, err := json.Marshal(EventNotice{Kind: e.Kind, EntityID: e.EntityID}); err == nil {
		_, _ = s.pool.Exec(ctx, "notify_event", EventChannel, string(payload))
	}
	return true, nil
}

// UpdateNotifiedCount stores the fan-out tally on the latest event for key.
func (s *Postgres) UpdateNotifiedCount(ctx context.Context, key EventKey, count int) error {
	var err error
	switch key.Kind {
	case KindStreaming:
		_, err = s.pool.Exec(ctx, "update_streaming_notified",
			key.EntityID, key.MediaType, key.FactID, key.FactType, key.ChangeType, count)
	case KindTalent:
		_, err = s.pool.Exec(ctx, "update_talent_notified",
			key.EntityID, key.FactID, key.MediaType, key.ChangeType, count)
	default:
		return fmt.Errorf("update notified count: unknown kind %q", key.Kind)
	}
	if err != nil {
		return fmt.Errorf("update notified count: %w", err)
	}
	return nil
}

// RecentEvents lists the latest events of one kind.
func (s *Postgres) RecentEvents(ctx context.Context, kind EventKind, limit int) ([]ChangeEvent, error) {
	stmt := "recent_streaming_events"
	if kind == KindTalent {
		stmt = "recent_talent_events"
	}
	rows, err := s.pool.Query(ctx, stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []ChangeEvent
	for rows.Next() {
		e := ChangeEvent{Kind: kind}
		if err := rows.Scan(&e.ID, &e.EntityID, &e.MediaType, &e.FactID, &e.FactType, &e.FactName,
			&e.ChangeType, &e.NotifiedCount, &e.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Preferences returns the user's settings, or nil when none are stored.
func (s *Postgres) Preferences(ctx context.Context, userID string) (*Preferences, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, "notification_preferences", userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return preferencesFromRow(userID, row), nil
}

// InsertNotification appends to the in-app notification log.
func (s *Postgres) InsertNotification(ctx context.Context, n InAppNotification) error {
	data, err := encodeData(n.Data)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, "insert_notification",
		n.ID, n.UserID, n.Category, n.Title, n.Body, nullable(n.ImageURL), data)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// DeviceTokens returns every registered push token of a user.
func (s *Postgres) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	return s.userIDs(ctx, "device_tokens", userID)
}

// DeleteDeviceTokens removes tokens the push transport reported as stale.
func (s *Postgres) DeleteDeviceTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, "delete_device_tokens", tokens); err != nil {
		return fmt.Errorf("delete device tokens: %w", err)
	}
	return nil
}

// PurgeNotifications deletes in-app rows created before the cutoff.
func (s *Postgres) PurgeNotifications(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "purge_notifications", before)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping verifies the database is reachable.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// --------------------------------------------------------------------------
// Encoding helpers shared by both drivers
// --------------------------------------------------------------------------

func decodeProviders(raw []byte) ([]catalog.Provider, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var providers []catalog.Provider
	if err := json.Unmarshal(raw, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// encodeProviders returns nil for an empty list so the column is stored NULL.
func encodeProviders(providers []catalog.Provider) ([]byte, error) {
	if len(providers) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(providers)
	if err != nil {
		return nil, fmt.Errorf("encode providers: %w", err)
	}
	return raw, nil
}

func encodeData(data map[string]string) ([]byte, error) {
	if data == nil {
		data = map[string]string{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode notification data: %w", err)
	}
	return raw, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*Postgres)(nil)
