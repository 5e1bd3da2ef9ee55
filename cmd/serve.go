package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/minuteswatch/internal/api"
	"github.com/JakeFAU/minuteswatch/internal/auth"
	"github.com/JakeFAU/minuteswatch/internal/dispatcher"
	"github.com/JakeFAU/minuteswatch/internal/migrate"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
	queuememory "github.com/JakeFAU/minuteswatch/internal/queue/memory"
	"github.com/JakeFAU/minuteswatch/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP application and the scrape worker",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := runtimeFrom(cmd.Context())
	if err != nil {
		return err
	}
	cfg, logger := rt.cfg, rt.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, "minuteswatch", version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	if cfg.DB.MigrateOnStart && cfg.DB.DSN != "" {
		version, err := migrate.Up(cfg.DB.DSN, logger)
		if err != nil {
			return fmt.Errorf("migrate on start: %w", err)
		}
		logger.Info("schema ready", zap.Uint("version", version))
	}

	svc, err := buildServices(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	created, err := svc.auth.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminUsername, cfg.Auth.BootstrapAdminPassword)
	if err != nil {
		return err
	}
	if created {
		logger.Info("bootstrap admin created", zap.String("username", cfg.Auth.BootstrapAdminUsername))
	}

	queue := queuememory.NewQueue(cfg.Scraper.QueueDepth)
	var dispatch *dispatcher.Dispatcher
	opts := api.Options{
		Store:          svc.store,
		Auth:           svc.auth,
		Cookie:         auth.CookieConfig{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure, TTL: cfg.TokenTTL()},
		Retention:      svc.retention,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		Logger:         logger,
	}
	if svc.pipeline != nil {
		dispatch = dispatcher.New(queue, svc.store, svc.pipeline, svc.ids, svc.clock, logger)
		opts.Runs = dispatch
	}
	apiServer, err := api.NewServer(opts)
	if err != nil {
		return fmt.Errorf("init api: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		queue.Close()
		return nil
	})
	if dispatch != nil {
		g.Go(func() error {
			logger.Info("dispatcher started")
			dispatch.Run(gctx)
			return nil
		})
		if interval := cfg.ScrapeInterval(); interval > 0 {
			g.Go(func() error {
				schedule(gctx, interval, dispatch, logger)
				return nil
			})
		}
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// schedule submits a run every interval until ctx ends.
func schedule(ctx context.Context, interval time.Duration, runs api.RunSubmitter, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("scrape schedule started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := runs.Submit(ctx, minutes.TriggerSchedule); err != nil && ctx.Err() == nil {
				logger.Warn("scheduled run not submitted", zap.Error(err))
			}
		}
	}
}
