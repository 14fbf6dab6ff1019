package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentinel-ops/casedesk/internal/server"
	"github.com/sentinel-ops/casedesk/internal/shared/events"
	"github.com/sentinel-ops/casedesk/internal/shared/logger"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging)

	app, err := server.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Bus.Subscribe(ctx, "*", "casedesk-log", events.LogSubscriber(log)); err != nil {
		log.Warn("event log subscriber not started", "error", err)
	}

	handler := app.Router()
	go app.RunCleanup(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started",
			"addr", srv.Addr,
			"env", cfg.Server.Env,
			"store", cfg.Store.Driver,
			"kurrentdb", cfg.KurrentDB.Enabled,
			"idempotency", cfg.Idempotency.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
