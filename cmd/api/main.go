// Command api is the Streamwatch HTTP server. It exposes the check
// triggers, the delivery endpoint and the recent-events feed, and runs the
// optional in-process check schedule and maintenance loops.
//
// Usage:
//
//	streamwatch-api
//	API_PORT=8080 STREAMING_CHECK_SCHEDULE="*/30 * * * *" streamwatch-api

// @title Streamwatch API
// @version 1.0.0
// @description Streaming availability and talent release change detection with notification fan-out.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name Streamwatch
// @license.name MIT
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/streamwatch/internal/app"
	"github.com/albapepper/streamwatch/internal/config"

	_ "github.com/albapepper/streamwatch/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	level := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	sched, err := a.Scheduler()
	if err != nil {
		logger.Error("Invalid check schedule", "error", err)
		os.Exit(1)
	}
	if sched != nil {
		sched.Start()
		for _, e := range sched.Entries() {
			logger.Info("Scheduled check", "job", e.Name, "next", e.Next.Format(time.RFC3339))
		}
	} else {
		logger.Info("No check schedule configured; checks run on request only")
	}

	go a.StartMaintenance(ctx)
	go a.StartListener(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // a check run answers only when it finishes
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting Streamwatch API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
