// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/checker.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Notification categories: keys of notification_preferences
// --------------------------------------------------------------------------

const (
	CategoryStreamingAlerts = "streaming_alerts"
	CategoryTalentReleases  = "talent_releases"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Store
	StoreDriver    string
	DatabaseURL    string
	SQLitePath     string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting (inbound API)
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Caller credentials
	ServiceRoleKey string
	JWTSecret      string

	// Catalog source (TMDB)
	TMDBAPIKey    string
	TMDBBaseURL   string
	TMDBImageBase string
	TMDBRegion    string

	// Push transport (FCM)
	FirebaseServiceAccount  string
	FirebaseCredentialsFile string

	// Batch runs
	CatalogInterval  time.Duration
	CheckBatchSize   int
	CallTimeout      time.Duration
	DeliveryTimeout  time.Duration
	RunTimeout       time.Duration
	CreditWindowDays int
	QuietHoursPolicy string

	// Scheduling & maintenance
	StreamingCheckSchedule string
	TalentCheckSchedule    string
	NotificationRetention  time.Duration
	CleanupInterval        time.Duration

	// Cache
	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
// Missing credentials are reported together in a single error.
func Load() (*Config, error) {
	cfg := &Config{
		StoreDriver:    strings.ToLower(envOr("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:    envOr("DATABASE_URL", envOr("SUPABASE_DB_URL", "")),
		SQLitePath:     envOr("SQLITE_PATH", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{"*"}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		ServiceRoleKey: envOr("SERVICE_ROLE_KEY", envOr("SUPABASE_SERVICE_ROLE_KEY", "")),
		JWTSecret:      envOr("JWT_SECRET", envOr("SUPABASE_JWT_SECRET", "")),

		TMDBAPIKey:    envOr("TMDB_API_KEY", ""),
		TMDBBaseURL:   envOr("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBImageBase: envOr("TMDB_IMAGE_BASE", "https://image.tmdb.org/t/p/original"),
		TMDBRegion:    envOr("TMDB_REGION", "US"),

		FirebaseServiceAccount:  envOr("FIREBASE_SERVICE_ACCOUNT", ""),
		FirebaseCredentialsFile: envOr("FIREBASE_CREDENTIALS_FILE", ""),

		CatalogInterval:  envDuration("CATALOG_INTERVAL", 250*time.Millisecond),
		CheckBatchSize:   envInt("CHECK_BATCH_SIZE", 50),
		CallTimeout:      envDuration("CALL_TIMEOUT", 15*time.Second),
		DeliveryTimeout:  envDuration("DELIVERY_TIMEOUT", 10*time.Second),
		RunTimeout:       envDuration("RUN_TIMEOUT", 30*time.Minute),
		CreditWindowDays: envInt("CREDIT_WINDOW_DAYS", 90),
		QuietHoursPolicy: strings.ToLower(envOr("QUIET_HOURS_POLICY", "off")),

		StreamingCheckSchedule: envOr("STREAMING_CHECK_SCHEDULE", ""),
		TalentCheckSchedule:    envOr("TALENT_CHECK_SCHEDULE", ""),
		NotificationRetention:  time.Duration(envInt("NOTIFICATION_RETENTION_DAYS", 90)) * 24 * time.Hour,
		CleanupInterval:        envDuration("CLEANUP_INTERVAL", time.Hour),

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every credential the pipeline cannot run without is
// present. Absence is a precondition failure, never a per-item one.
func (c *Config) Validate() error {
	var missing []string

	if c.TMDBAPIKey == "" {
		missing = append(missing, "TMDB_API_KEY")
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want %s or %s)", c.StoreDriver, DriverPostgres, DriverSQLite)
	}
	if c.FirebaseServiceAccount == "" && c.FirebaseCredentialsFile == "" {
		missing = append(missing, "FIREBASE_SERVICE_ACCOUNT or FIREBASE_CREDENTIALS_FILE")
	}
	if c.ServiceRoleKey == "" {
		missing = append(missing, "SERVICE_ROLE_KEY")
	}

	if len(missing) > 0 {
		return errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}
	if c.CheckBatchSize < 1 {
		return fmt.Errorf("CHECK_BATCH_SIZE must be positive, got %d", c.CheckBatchSize)
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CreditWindow is the look-back used to decide whether a credit is new content.
func (c *Config) CreditWindow() time.Duration {
	return time.Duration(c.CreditWindowDays) * 24 * time.Hour
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("250ms", "15s").
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
