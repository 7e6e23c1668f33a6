package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/rootapp/internal/app"
	"github.com/keyxmakerx/rootapp/internal/database"
	"github.com/keyxmakerx/rootapp/internal/plugins/mail"
	"github.com/keyxmakerx/rootapp/internal/tracing"
)

// shutdownGrace is how long in-flight requests get to finish on SIGTERM.
const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		slog.Info("starting root API",
			slog.String("env", cfg.Env),
			slog.Int("port", cfg.Port),
		)

		// Cancelled on SIGINT/SIGTERM so Docker restarts drain cleanly.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.Env, version)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				slog.Warn("flushing traces failed", slog.Any("error", err))
			}
		}()

		// --- Connect to MariaDB ---
		db, err := database.NewMariaDB(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to MariaDB: %w", err)
		}
		defer db.Close()
		slog.Info("connected to MariaDB")

		if cfg.Database.AutoMigrate {
			if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
				return err
			}
		}

		// --- Connect to Redis ---
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect to Redis: %w", err)
		}
		defer rdb.Close()
		slog.Info("connected to Redis")

		transport := mail.NewTransport(cfg.Mail)
		defer func() {
			if err := transport.Close(); err != nil {
				slog.Warn("closing mail transport failed", slog.Any("error", err))
			}
		}()

		// --- Create Application ---
		application := app.New(cfg, db, rdb)
		if err := application.RegisterRoutes(ctx, app.NewRepositories(db), transport); err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() { errCh <- application.Start() }()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stopped: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := application.Echo.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
		return nil
	},
}
