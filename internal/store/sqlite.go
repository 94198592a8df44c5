package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/albapepper/streamwatch/internal/catalog"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite is a single-file Store for local runs and tests. It owns the
// registry tables that production reads through database functions.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the unique indexes still arbitrate concurrent
	// recorders, this only avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// --------------------------------------------------------------------------
// Entity registry
// --------------------------------------------------------------------------

// HotTitles returns cached titles ordered by how many users watchlist them.
func (s *SQLite) HotTitles(ctx context.Context, limit int) ([]Title, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.tmdb_id, c.media_type, c.title, c.streaming_providers, COUNT(w.user_id) AS n
		FROM content_cache c
		JOIN watchlist_items w ON w.tmdb_id = c.tmdb_id AND w.media_type = c.media_type
		GROUP BY c.tmdb_id, c.media_type
		ORDER BY n DESC, c.tmdb_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get hot titles: %w", err)
	}
	defer rows.Close()

	var titles []Title
	for rows.Next() {
		var t Title
		var raw sql.NullString
		if err := rows.Scan(&t.TMDBID, &t.MediaType, &t.Title, &raw, &t.WatchlistCount); err != nil {
			return nil, fmt.Errorf("scan hot title: %w", err)
		}
		if t.Providers, err = decodeProviders([]byte(raw.String)); err != nil {
			return nil, fmt.Errorf("decode snapshot for %d: %w", t.TMDBID, err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// FollowedPersons returns persons ordered by follower count.
func (s *SQLite) FollowedPersons(ctx context.Context, limit int) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tmdb_person_id, MAX(person_name), COUNT(*) AS n
		FROM person_follows
		GROUP BY tmdb_person_id
		ORDER BY n DESC, tmdb_person_id
		LIMIT ?`, limit)
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
func (s *SQLite) ReplaceProviderSnapshot(ctx context.Context, t Title, providers []catalog.Provider) error {
	raw, err := encodeProviders(providers)
	if err != nil {
		return err
	}
	var arg any
	if raw != nil {
		arg = string(raw)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE content_cache SET streaming_providers = ?, updated_at = ? WHERE tmdb_id = ? AND media_type = ?`,
		arg, s.timestamp(), t.TMDBID, t.MediaType)
	if err != nil {
		return fmt.Errorf("replace provider snapshot: %w", err)
	}
	return nil
}

// KnownCredits returns the credit keys already recorded for a person.
func (s *SQLite) KnownCredits(ctx context.Context, personID int) (map[catalog.CreditKey]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tmdb_content_id, media_type FROM talent_content_events WHERE tmdb_person_id = ?`, personID)
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

// --------------------------------------------------------------------------
// Audience resolver
// --------------------------------------------------------------------------

// StreamingAudience returns every user with the title on their watchlist.
func (s *SQLite) StreamingAudience(ctx context.Context, t Title, _ catalog.Provider) ([]string, error) {
	return s.column(ctx,
		`SELECT user_id FROM watchlist_items WHERE tmdb_id = ? AND media_type = ? ORDER BY user_id`,
		t.TMDBID, t.MediaType)
}

// TalentAudience returns every follower of the person.
func (s *SQLite) TalentAudience(ctx context.Context, p Person) ([]string, error) {
	return s.column(ctx,
		`SELECT user_id FROM person_follows WHERE tmdb_person_id = ? ORDER BY user_id`, p.TMDBPersonID)
}

func (s *SQLite) column(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --------------------------------------------------------------------------
// Event recorder
// --------------------------------------------------------------------------

// RecordEvent inserts the event unless its key already exists. It reports
// true only for the call that created the row.
func (s *SQLite) RecordEvent(ctx context.Context, e ChangeEvent) (bool, error) {
	detected := s.timestamp()
	if !e.DetectedAt.IsZero() {
		detected = e.DetectedAt.UTC().Format(timeLayout)
	}

	var row *sql.Row
	switch e.Kind {
	case KindStreaming:
		row = s.db.QueryRowContext(ctx, `
			INSERT INTO streaming_change_events
				(tmdb_id, media_type, provider_id, provider_name, provider_type, change_type, detected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
			RETURNING id`,
			e.EntityID, e.MediaType, e.FactID, e.FactName, e.FactType, e.ChangeType, detected)
	case KindTalent:
		row = s.db.QueryRowContext(ctx, `
			INSERT INTO talent_content_events
				(tmdb_person_id, tmdb_content_id, media_type, content_title, change_type, detected_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
			RETURNING id`,
			e.EntityID, e.FactID, e.MediaType, e.FactName, e.ChangeType, detected)
	default:
		return false, fmt.Errorf("record event: unknown kind %q", e.Kind)
	}

	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("record %s event: %w", e.Kind, err)
	}
	return true, nil
}

// UpdateNotifiedCount stores the fan-out tally on the latest event for key.
func (s *SQLite) UpdateNotifiedCount(ctx context.Context, key EventKey, count int) error {
	var err error
	switch key.Kind {
	case KindStreaming:
		_, err = s.db.ExecContext(ctx, `
			UPDATE streaming_change_events SET notified_user_count = ?
			WHERE id = (
				SELECT id FROM streaming_change_events
				WHERE tmdb_id = ? AND media_type = ? AND provider_id = ? AND provider_type = ? AND change_type = ?
				ORDER BY detected_at DESC, id DESC LIMIT 1
			)`,
			count, key.EntityID, key.MediaType, key.FactID, key.FactType, key.ChangeType)
	case KindTalent:
		_, err = s.db.ExecContext(ctx, `
			UPDATE talent_content_events SET notified_user_count = ?
			WHERE id = (
				SELECT id FROM talent_content_events
				WHERE tmdb_person_id = ? AND tmdb_content_id = ? AND media_type = ? AND change_type = ?
				ORDER BY detected_at DESC, id DESC LIMIT 1
			)`,
			count, key.EntityID, key.FactID, key.MediaType, key.ChangeType)
	default:
		return fmt.Errorf("update notified count: unknown kind %q", key.Kind)
	}
	if err != nil {
		return fmt.Errorf("update notified count: %w", err)
	}
	return nil
}

// RecentEvents lists the latest events of one kind, newest first.
func (s *SQLite) RecentEvents(ctx context.Context, kind EventKind, limit int) ([]ChangeEvent, error) {
	query := `
		SELECT id, tmdb_id, media_type, provider_id, provider_type, provider_name,
			change_type, notified_user_count, detected_at
		FROM streaming_change_events ORDER BY detected_at DESC, id DESC LIMIT ?`
	if kind == KindTalent {
		query = `
			SELECT id, tmdb_person_id, media_type, tmdb_content_id, '', content_title,
				change_type, notified_user_count, detected_at
			FROM talent_content_events ORDER BY detected_at DESC, id DESC LIMIT ?`
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []ChangeEvent
	for rows.Next() {
		e := ChangeEvent{Kind: kind}
		var detected string
		if err := rows.Scan(&e.ID, &e.EntityID, &e.MediaType, &e.FactID, &e.FactType, &e.FactName,
			&e.ChangeType, &e.NotifiedCount, &detected); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.DetectedAt, err = time.Parse(timeLayout, detected); err != nil {
			return nil, fmt.Errorf("parse detected_at: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --------------------------------------------------------------------------
// Delivery side
// --------------------------------------------------------------------------

// Preferences returns the user's settings, or nil when none are stored.
func (s *SQLite) Preferences(ctx context.Context, userID string) (*Preferences, error) {
	var streaming, talent sql.NullBool
	var start, end, tz string
	err := s.db.QueryRowContext(ctx, `
		SELECT streaming_alerts, talent_releases, quiet_hours_start, quiet_hours_end, timezone
		FROM notification_preferences WHERE user_id = ?`, userID).
		Scan(&streaming, &talent, &start, &end, &tz)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	row := map[string]any{
		"quiet_hours_start": start,
		"quiet_hours_end":   end,
		"timezone":          tz,
	}
	if streaming.Valid {
		row["streaming_alerts"] = streaming.Bool
	}
	if talent.Valid {
		row["talent_releases"] = talent.Bool
	}
	return preferencesFromRow(userID, row), nil
}

// InsertNotification appends to the in-app notification log.
func (s *SQLite) InsertNotification(ctx context.Context, n InAppNotification) error {
	data, err := encodeData(n.Data)
	if err != nil {
		return err
	}
	created := s.timestamp()
	if !n.CreatedAt.IsZero() {
		created = n.CreatedAt.UTC().Format(timeLayout)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, category, title, body, image_url, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID.String(), n.UserID, n.Category, n.Title, n.Body, nullable(n.ImageURL), string(data), created)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// DeviceTokens returns every registered push token of a user.
func (s *SQLite) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	tokens, err := s.column(ctx,
		`SELECT fcm_token FROM user_device_tokens WHERE user_id = ? ORDER BY created_at, fcm_token`, userID)
	if err != nil {
		return nil, fmt.Errorf("get device tokens: %w", err)
	}
	return tokens, nil
}

// DeleteDeviceTokens removes tokens the push transport reported as stale.
func (s *SQLite) DeleteDeviceTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tokens)), ",")
	args := make([]any, len(tokens))
	for i, t := range tokens {
		args[i] = t
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_device_tokens WHERE fcm_token IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete device tokens: %w", err)
	}
	return nil
}

// PurgeNotifications deletes in-app rows created before the cutoff.
func (s *SQLite) PurgeNotifications(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE created_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return res.RowsAffected()
}

// Ping verifies the database file is usable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// --------------------------------------------------------------------------
// Seeding, used by the seed command and tests
// --------------------------------------------------------------------------

// UpsertTitle inserts or renames a cached title, replacing its snapshot.
func (s *SQLite) UpsertTitle(ctx context.Context, t Title) error {
	raw, err := encodeProviders(t.Providers)
	if err != nil {
		return err
	}
	var arg any
	if raw != nil {
		arg = string(raw)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO content_cache (tmdb_id, media_type, title, streaming_providers, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tmdb_id, media_type) DO UPDATE SET
			title = excluded.title,
			streaming_providers = excluded.streaming_providers,
			updated_at = excluded.updated_at`,
		t.TMDBID, t.MediaType, t.Title, arg, s.timestamp())
	if err != nil {
		return fmt.Errorf("upsert title: %w", err)
	}
	return nil
}

// AddWatchlistItem puts a title on a user's watchlist.
func (s *SQLite) AddWatchlistItem(ctx context.Context, userID string, tmdbID int, mediaType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watchlist_items (user_id, tmdb_id, media_type) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		userID, tmdbID, mediaType)
	if err != nil {
		return fmt.Errorf("add watchlist item: %w", err)
	}
	return nil
}

// FollowPerson records that a user follows a person.
func (s *SQLite) FollowPerson(ctx context.Context, userID string, p Person) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO person_follows (user_id, tmdb_person_id, person_name) VALUES (?, ?, ?)
		ON CONFLICT (user_id, tmdb_person_id) DO UPDATE SET person_name = excluded.person_name`,
		userID, p.TMDBPersonID, p.Name)
	if err != nil {
		return fmt.Errorf("follow person: %w", err)
	}
	return nil
}

// RegisterDeviceToken attaches a push token to a user.
func (s *SQLite) RegisterDeviceToken(ctx context.Context, userID, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_device_tokens (fcm_token, user_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (fcm_token) DO UPDATE SET user_id = excluded.user_id`,
		token, userID, s.timestamp())
	if err != nil {
		return fmt.Errorf("register device token: %w", err)
	}
	return nil
}

// SetPreferences stores a user's preferences. Only the two known categories
// are persisted; a category missing from p.Categories is stored as unset.
func (s *SQLite) SetPreferences(ctx context.Context, p Preferences) error {
	cat := func(name string) any {
		if v, ok := p.Categories[name]; ok {
			return v
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences
			(user_id, streaming_alerts, talent_releases, quiet_hours_start, quiet_hours_end, timezone)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			streaming_alerts = excluded.streaming_alerts,
			talent_releases = excluded.talent_releases,
			quiet_hours_start = excluded.quiet_hours_start,
			quiet_hours_end = excluded.quiet_hours_end,
			timezone = excluded.timezone`,
		p.UserID, cat("streaming_alerts"), cat("talent_releases"),
		p.QuietHoursStart, p.QuietHoursEnd, p.Timezone)
	if err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}
	return nil
}

// Notifications lists a user's in-app notifications, oldest first.
func (s *SQLite) Notifications(ctx context.Context, userID string) ([]InAppNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, category, title, body, COALESCE(image_url, ''), data, created_at
		FROM notifications WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []InAppNotification
	for rows.Next() {
		var n InAppNotification
		var id, data, created string
		if err := rows.Scan(&id, &n.UserID, &n.Category, &n.Title, &n.Body, &n.ImageURL, &data, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if n.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse notification id: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return nil, fmt.Errorf("decode notification data: %w", err)
		}
		if n.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

var _ Store = (*SQLite)(nil)
