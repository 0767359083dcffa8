package cli

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

	"github.com/spf13/cobra"

	"github.com/dandantas/grabber/internal/clock"
	"github.com/dandantas/grabber/internal/handler"
	"github.com/dandantas/grabber/internal/model"
	"github.com/dandantas/grabber/internal/render"
	"github.com/dandantas/grabber/internal/scheduler"
	"github.com/dandantas/grabber/internal/service"
	"github.com/dandantas/grabber/internal/session"
)

const shutdownTimeout = 30 * time.Second

func NewRunCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the slot scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runService(ctx, deps)
		},
	}
}

func runService(ctx context.Context, deps *Dependencies) error {
	cfg := deps.Config
	slog.Info("Starting grabber", "version", Version, "config", cfg.Path, "download_dir", cfg.General.DownloadDir)

	if err := os.MkdirAll(cfg.General.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}
	if err := cfg.RequireRunKeys(); err != nil {
		slog.Warn("Runs will fail until configuration is complete", "error", err)
	}

	remote := session.NewWebDriver(webDriverConfig(cfg))
	uploader := newUploader(cfg)
	defer func() {
		if err := uploader.Close(context.Background()); err != nil {
			slog.Error("Failed to close upload destinations", "error", err)
		}
	}()

	store := model.NewRunStatusStore(100)
	orchestrator := service.NewOrchestrator(
		orchestratorConfig(cfg),
		recorderFactory(cfg, remote),
		render.NewSpectrogram(spectrogramConfig(cfg)),
		uploader,
		store,
		clock.Real{},
	)
	orchestrator.Start()

	// Drawn once per process and held; the sticky slot relies on it.
	lead := cfg.Schedule.LeadTime()
	sched, err := scheduler.NewScheduler(scheduler.Options{
		Interval:     cfg.Schedule.Interval(),
		Lead:         lead,
		RecordLength: cfg.Schedule.RecordLength(),
		PollInterval: cfg.Schedule.PollInterval(),
	}, orchestrator)
	if err != nil {
		return err
	}
	sched.Start(ctx)

	var server *http.Server
	if cfg.HTTP.Enabled {
		router := handler.NewRouter(
			handler.NewRunsHandler(store, sched),
			handler.NewHealthHandler(cfg.RequireRunKeys, Version),
		)
		server = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("Starting HTTP server", "addr", cfg.HTTP.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("Received shutdown signal, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// No new runs once the scheduler has stopped; in-flight runs finish.
	sched.Stop()
	orchestrator.Stop(shutdownCtx)

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}

	slog.Info("Grabber stopped")
	return nil
}
