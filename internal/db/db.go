// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/streamwatch/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Statements lists every prepared statement by name. Registry reads go
// through the Postgres functions the rest of the platform already exposes.
var Statements = map[string]string{
	// Health
	"health_check": "SELECT 1",

	// Entity registry
	"hot_titles":       "SELECT tmdb_id, media_type, title, streaming_providers, watchlist_user_count FROM get_hot_watchlist_items_for_streaming_check($1)",
	"followed_persons": "SELECT tmdb_person_id, person_name, follower_count FROM get_followed_persons_to_check($1)",
	"replace_provider_snapshot": `UPDATE content_cache
		SET streaming_providers = $3, updated_at = NOW()
		WHERE tmdb_id = $1 AND media_type = $2`,
	"known_credits": "SELECT tmdb_content_id, media_type FROM talent_content_events WHERE tmdb_person_id = $1",

	// Audience resolver
	"streaming_audience": "SELECT user_id FROM get_users_to_notify_for_provider($1, $2, $3, $4)",
	"talent_audience":    "SELECT user_id FROM get_followers_of_person($1)",

	// Event recorder: insert-if-absent, a returned id means this call created the row
	"record_streaming_event": `INSERT INTO streaming_change_events
			(tmdb_id, media_type, provider_id, provider_name, provider_type, change_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tmdb_id, media_type, provider_id, provider_type, change_type) DO NOTHING
		RETURNING id`,
	"record_talent_event": `INSERT INTO talent_content_events
			(tmdb_person_id, tmdb_content_id, media_type, content_title, change_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tmdb_person_id, tmdb_content_id, media_type, change_type) DO NOTHING
		RETURNING id`,
	"update_streaming_notified": `UPDATE streaming_change_events SET notified_user_count = $6
		WHERE id = (
			SELECT id FROM streaming_change_events
			WHERE tmdb_id = $1 AND media_type = $2 AND provider_id = $3
			  AND provider_type = $4 AND change_type = $5
			ORDER BY detected_at DESC, id DESC
			LIMIT 1
		)`,
	"update_talent_notified": `UPDATE talent_content_events SET notified_user_count = $5
		WHERE id = (
			SELECT id FROM talent_content_events
			WHERE tmdb_person_id = $1 AND tmdb_content_id = $2 AND media_type = $3 AND change_type = $4
			ORDER BY detected_at DESC, id DESC
			LIMIT 1
		)`,
	"recent_streaming_events": `SELECT id, tmdb_id, media_type, provider_id, provider_type, provider_name,
			change_type, notified_user_count, detected_at
		FROM streaming_change_events ORDER BY detected_at DESC LIMIT $1`,
	"recent_talent_events": `SELECT id, tmdb_person_id, media_type, tmdb_content_id, '' AS fact_type, content_title,
			change_type, notified_user_count, detected_at
		FROM talent_content_events ORDER BY detected_at DESC LIMIT $1`,

	// Delivery gate
	"notification_preferences": "SELECT to_jsonb(np) FROM notification_preferences np WHERE np.user_id = $1",
	"insert_notification": `INSERT INTO notifications (id, user_id, category, title, body, image_url, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"device_tokens":        "SELECT fcm_token FROM user_device_tokens WHERE user_id = $1",
	"delete_device_tokens": "DELETE FROM user_device_tokens WHERE fcm_token = ANY($1)",

	// Maintenance
	"purge_notifications": "DELETE FROM notifications WHERE created_at < $1",
	"notify_event":        "SELECT pg_notify($1, $2)",
}

// registerPreparedStatements registers all statements the pipeline uses.
// Prepared statements eliminate parse overhead on every call.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
