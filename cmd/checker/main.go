// Command checker runs Streamwatch batches from the command line.
//
// Usage:
//
//	streamwatch-checker streaming --limit 20
//	streamwatch-checker talent
//	streamwatch-checker schedule
//	streamwatch-checker send --user u1 --category streaming_alerts --title "Now on Netflix!" --body "Fight Club"
//	STORE_DRIVER=sqlite SQLITE_PATH=dev.db streamwatch-checker seed --file seed.json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/streamwatch/internal/app"
	"github.com/albapepper/streamwatch/internal/checker"
	"github.com/albapepper/streamwatch/internal/config"
	"github.com/albapepper/streamwatch/internal/delivery"
	"github.com/albapepper/streamwatch/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "streamwatch-checker",
		Short:         "Streaming availability and talent release checks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(runCmd("streaming", "Check hot watchlisted titles for new streaming providers",
		func(c *checker.Checker) runFunc { return c.RunStreaming }))
	root.AddCommand(runCmd("talent", "Check followed people for new credits",
		func(c *checker.Checker) runFunc { return c.RunTalent }))
	root.AddCommand(scheduleCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(seedCmd())

	if err := root.Execute(); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

type runFunc func(ctx context.Context, limit int) (*checker.RunResult, error)

// --------------------------------------------------------------------------
// streaming / talent commands
// --------------------------------------------------------------------------

func runCmd(name, short string, pick func(*checker.Checker) runFunc) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				res, err := pick(a.Checker)(ctx, limit)
				if err != nil {
					return err
				}
				logger.Info("Check finished", "summary", res.Summary())
				for _, e := range res.Errors {
					logger.Warn("entity skipped", "error", e)
				}
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(res.Results)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Override CHECK_BATCH_SIZE for this run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print per-entity results as JSON")
	return cmd
}

// --------------------------------------------------------------------------
// schedule command
// --------------------------------------------------------------------------

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run checks on STREAMING_CHECK_SCHEDULE / TALENT_CHECK_SCHEDULE until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				sched, err := a.Scheduler()
				if err != nil {
					return err
				}
				if sched == nil {
					return errors.New("no schedule configured: set STREAMING_CHECK_SCHEDULE or TALENT_CHECK_SCHEDULE")
				}
				sched.Start()
				for _, e := range sched.Entries() {
					logger.Info("Scheduled check", "job", e.Name, "spec", e.Spec, "next", e.Next.Format(time.RFC3339))
				}
				go a.StartMaintenance(ctx)

				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				sched.Stop(stopCtx)
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// send command
// --------------------------------------------------------------------------

func sendCmd() *cobra.Command {
	var req delivery.Request
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Deliver one notification to one user through the delivery gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := req.Validate(); err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				res, err := a.Gate.Deliver(ctx, req)
				if err != nil {
					return err
				}
				logger.Info("Notification delivered",
					"user_id", req.UserID,
					"sent", res.Sent,
					"failed", res.Failed,
					"in_app", res.InApp,
					"skipped_reason", res.SkippedReason)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.UserID, "user", "", "Recipient user id")
	cmd.Flags().StringVar(&req.Category, "category", config.CategoryStreamingAlerts, "Preference category")
	cmd.Flags().StringVar(&req.Title, "title", "", "Notification title")
	cmd.Flags().StringVar(&req.Body, "body", "", "Notification body")
	cmd.Flags().StringVar(&req.ImageURL, "image", "", "Image URL")
	cmd.Flags().StringToStringVar(&req.Data, "data", nil, "Data payload (key=value,...)")
	return cmd
}

// --------------------------------------------------------------------------
// seed command
// --------------------------------------------------------------------------

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a local development fixture into the sqlite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.StoreDriver != config.DriverSQLite {
				return fmt.Errorf("seed requires STORE_DRIVER=%s", config.DriverSQLite)
			}
			sq, err := store.OpenSQLite(ctx, cfg.SQLitePath)
			if err != nil {
				return err
			}
			defer sq.Close()

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			data, err := store.ReadSeed(f)
			if err != nil {
				return err
			}
			counts, err := sq.Seed(ctx, data)
			if err != nil {
				return err
			}
			logger.Info("Seed finished",
				"titles", counts.Titles,
				"watchlist", counts.Watchlist,
				"persons", counts.Persons,
				"follows", counts.Follows,
				"devices", counts.Devices,
				"preferences", counts.Preferences)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "seed.json", "Seed fixture path")
	return cmd
}

// withApp loads configuration, wires the pipeline and runs fn with a
// context cancelled on interrupt.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
