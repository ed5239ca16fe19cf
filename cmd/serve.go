package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/huishype/huishype/internal/adapters/http/api"
	"github.com/huishype/huishype/internal/adapters/http/auth"
	"github.com/huishype/huishype/internal/adapters/http/swagger"
	"github.com/huishype/huishype/internal/adapters/http/ws"
	service "github.com/huishype/huishype/internal/app"
	"github.com/huishype/huishype/internal/config"
	"github.com/huishype/huishype/pkg/logger"
	"github.com/huishype/huishype/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  "Starts the guess queue, the worker pool and the HTTP API, and shuts them down gracefully on SIGINT or SIGTERM.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := setup(ctx, os.Stdout)
	if err != nil {
		return err
	}
	log := logger.Get().Named("serve")

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "failed to close store", logger.Error(err))
		}
	}()
	log.Info(ctx, "store ready", logger.String("driver", cfg.StorageDriver))

	tokens, err := auth.NewService(cfg.JWTSecret, jwtExpiration(cfg))
	if err != nil {
		return err
	}

	opts := []service.Option{
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.EventQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithRecomputeConcurrency(cfg.RecomputeConcurrency),
		service.WithEstimator(newEstimator(cfg)),
	}
	var hub *ws.Hub
	if cfg.WSEnabled {
		hub = ws.New()
		defer hub.Close()
		opts = append(opts, service.WithPublisher(hub))
	}

	svc := service.New(store, opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	go metrics.RunSystemCollector(ctx)

	if path := activeConfigPath(); path != "" {
		go func() {
			err := config.Watch(ctx, path, func(next *config.Config) {
				if err := logger.SetLevelString(next.LogLevel); err != nil {
					log.Warn(ctx, "ignoring invalid log_level", logger.String("log_level", next.LogLevel))
					return
				}
				log.Info(ctx, "config reloaded", logger.String("log_level", next.LogLevel))
			})
			if err != nil {
				log.Error(ctx, "config watcher stopped", logger.Error(err))
			}
		}()
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	apiOpts := []api.Option{api.WithMaxBoardLimit(cfg.MaxBoardLimit)}
	if hub != nil {
		apiOpts = append(apiOpts, api.WithLiveUpdates(hub))
	}
	api.NewServer(svc, svc, tokens, apiOpts...).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		if runErr != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(runErr))
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if hub != nil {
		hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return runErr
}
