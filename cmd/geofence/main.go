// Package main is the entry point for the geofence process: the tick
// loop that evaluates active LocationReminders against each user's last
// known position and publishes enter/exit trigger notifications.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/relaycore/assistant-core/internal/bus"
	"github.com/relaycore/assistant-core/internal/config"
	"github.com/relaycore/assistant-core/internal/errorlog"
	"github.com/relaycore/assistant-core/internal/geofence"
	"github.com/relaycore/assistant-core/internal/observability"
	"github.com/relaycore/assistant-core/internal/storage"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("geofence worker exited with error", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "geofence",
		Short:   "Runs the location-triggered reminder core",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "geofence.yaml", "path to the shared config file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	messageBus, err := openBus(cfg)
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}
	defer messageBus.Close()

	metrics := observability.NewMetrics()
	errorLogs := errorlog.New(store.ErrorLogs, metrics, logger)

	worker := geofence.New(geofence.Deps{
		Reminders: store.LocationReminders,
		Locations: store.UserLocations,
		Bus:       messageBus,
		ErrorLogs: errorLogs,
		Metrics:   metrics,
	}, geofence.Config{
		TickInterval:       cfg.Geofence.TickInterval,
		StalenessThreshold: cfg.Geofence.StalenessThreshold,
	}, logger)

	metricsServer := newMetricsServer(cfg.Server.Host, cfg.Server.MetricsPort)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(runCtx)
	}()
	logger.Info("geofence worker started", "tick_interval", cfg.Geofence.TickInterval)

	<-runCtx.Done()
	logger.Info("shutdown signal received, draining geofence worker")

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("geofence worker did not stop within shutdown timeout")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	logger.Info("geofence worker stopped gracefully")
	return nil
}

func newMetricsServer(host string, port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: fmt.Sprintf("%s:%d", host, port), Handler: mux}
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Database.URL == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewPostgresStoreFromDSN(cfg.Database.URL, &storage.PostgresConfig{
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  10 * time.Second,
	})
}

func openBus(cfg *config.Config) (bus.Bus, error) {
	if cfg.Bus.URL == "" {
		return bus.NewMemoryBus(), nil
	}
	return bus.NewRedisBus(cfg.Bus.URL)
}
