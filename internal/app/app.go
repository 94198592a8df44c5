// Package app wires configuration into the long-lived components shared by
// cmd/api and cmd/checker.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/albapepper/streamwatch/internal/api"
	"github.com/albapepper/streamwatch/internal/api/handler"
	"github.com/albapepper/streamwatch/internal/cache"
	"github.com/albapepper/streamwatch/internal/catalog"
	"github.com/albapepper/streamwatch/internal/checker"
	"github.com/albapepper/streamwatch/internal/config"
	"github.com/albapepper/streamwatch/internal/delivery"
	"github.com/albapepper/streamwatch/internal/listener"
	"github.com/albapepper/streamwatch/internal/maintenance"
	"github.com/albapepper/streamwatch/internal/notifications"
	"github.com/albapepper/streamwatch/internal/pacer"
	"github.com/albapepper/streamwatch/internal/push"
	"github.com/albapepper/streamwatch/internal/scheduler"
	"github.com/albapepper/streamwatch/internal/store"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	Store   store.Store
	Gate    *delivery.Gate
	Checker *checker.Checker
	Cache   *cache.Cache
	Logger  *slog.Logger
}

// New connects the store and push transport and builds the pipeline. Any
// failure here is a precondition failure for every run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sender, err := push.NewFCMSender(ctx, cfg.FirebaseServiceAccount, cfg.FirebaseCredentialsFile, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init push transport: %w", err)
	}

	gate := delivery.NewGate(st, sender, logger,
		delivery.WithQuietHours(delivery.Policy(cfg.QuietHoursPolicy)))
	dispatcher := notifications.NewDispatcher(gate, cfg.DeliveryTimeout, logger)
	client := catalog.NewClient(cfg.TMDBBaseURL, cfg.TMDBAPIKey, cfg.TMDBRegion, cfg.CallTimeout, logger)

	chk := checker.New(client, st, dispatcher, pacer.New(cfg.CatalogInterval), checker.Options{
		BatchSize:    cfg.CheckBatchSize,
		CallTimeout:  cfg.CallTimeout,
		ImageBase:    cfg.TMDBImageBase,
		CreditWindow: cfg.CreditWindow(),
	}, logger)

	logger.Info("Pipeline ready",
		"store", cfg.StoreDriver,
		"batch_size", cfg.CheckBatchSize,
		"catalog_interval", cfg.CatalogInterval,
		"quiet_hours", cfg.QuietHoursPolicy)

	return &App{
		Config:  cfg,
		Store:   st,
		Gate:    gate,
		Checker: chk,
		Cache:   cache.New(cfg.CacheEnabled, nil),
		Logger:  logger,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// Router builds the HTTP surface.
func (a *App) Router() http.Handler {
	h := handler.New(a.Checker, a.Gate, a.Store, a.Cache, a.Logger).WithRunTimeout(a.Config.RunTimeout)
	return api.NewRouter(h, a.Config, a.Logger)
}

// Scheduler registers a cron job for every configured check schedule. It
// returns nil when no schedule is configured.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	jobs := []scheduler.Job{
		{Name: "streaming", Spec: a.Config.StreamingCheckSchedule, Timeout: a.Config.RunTimeout, Run: a.runner(store.KindStreaming, a.Checker.RunStreaming)},
		{Name: "talent", Spec: a.Config.TalentCheckSchedule, Timeout: a.Config.RunTimeout, Run: a.runner(store.KindTalent, a.Checker.RunTalent)},
	}

	var s *scheduler.Scheduler
	for _, job := range jobs {
		if job.Spec == "" {
			continue
		}
		if s == nil {
			s = scheduler.New(a.Logger)
		}
		if err := s.Add(job); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *App) runner(kind store.EventKind, run func(context.Context, int) (*checker.RunResult, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		res, err := run(ctx, 0)
		if err != nil {
			return err
		}
		if res.Recorded > 0 {
			a.Cache.Invalidate(handler.EventsCachePrefix(kind))
		}
		return nil
	}
}

// StartMaintenance runs the maintenance loops until ctx is cancelled.
func (a *App) StartMaintenance(ctx context.Context) {
	cfg := maintenance.DefaultConfig()
	cfg.CleanupInterval = a.Config.CleanupInterval
	cfg.Retention = a.Config.NotificationRetention
	maintenance.Start(ctx, a.Store, a.Cache, cfg, nil, a.Logger)
}

// StartListener drops cached event listings whenever any process records an
// event. Only the postgres driver publishes notices; for sqlite it returns
// immediately.
func (a *App) StartListener(ctx context.Context) {
	if a.Config.StoreDriver != config.DriverPostgres {
		return
	}
	listener.Start(ctx, a.Config.DatabaseURL, func(n store.EventNotice) {
		a.Cache.Invalidate(handler.EventsCachePrefix(n.Kind))
	}, a.Logger)
}
