// Package main is the entry point for the scheduler process: the durable
// background job tick loop that claims due ScheduledJobs, runs their
// check, and publishes success/failure notifications or resumes a
// conversation.
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
	"github.com/relaycore/assistant-core/internal/observability"
	"github.com/relaycore/assistant-core/internal/scheduler"
	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/internal/svcauth"
	"github.com/relaycore/assistant-core/internal/toolregistry"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("scheduler exited with error", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath, orchestratorURL string

	cmd := &cobra.Command{
		Use:     "scheduler",
		Short:   "Runs the durable background job scheduling core",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, orchestratorURL)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "scheduler.yaml", "path to the shared config file")
	cmd.Flags().StringVar(&orchestratorURL, "orchestrator-url", "http://localhost:8080", "base URL of the orchestrator's HTTP ingress, for resume_conversation jobs")
	return cmd
}

func run(ctx context.Context, configPath, orchestratorURL string) error {
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

	authSvc := svcauth.New(cfg.ServiceAuth.SharedSecret, logger)
	metrics := observability.NewMetrics()
	errorLogs := errorlog.New(store.ErrorLogs, metrics, logger)

	tools := toolregistry.New(toolregistry.Config{
		Endpoints:       cfg.Modules.Endpoints,
		ManifestPath:    cfg.Modules.ManifestPath,
		ExecutePath:     cfg.Modules.ExecutePath,
		DispatchTimeout: cfg.Modules.DispatchTimeout,
		Metrics:         metrics,
	}, messageBus, authSvc, logger)
	tools.RefreshAll(ctx)

	httpClient := &http.Client{Timeout: cfg.Modules.DispatchTimeout}
	resumer := scheduler.NewHTTPResumer(orchestratorURL, httpClient, authSvc)

	worker := scheduler.New(scheduler.Deps{
		Jobs:      store.ScheduledJobs,
		Workflows: store.ScheduledWorkflows,
		Tools:     tools,
		Bus:       messageBus,
		Auth:      authSvc,
		ErrorLogs: errorLogs,
		Resumer:   resumer,
		HTTP:      httpClient,
		Metrics:   metrics,
	}, scheduler.Config{
		TickInterval: cfg.Scheduler.TickInterval,
		ClaimBatch:   cfg.Scheduler.ClaimBatch,
	}, logger)

	metricsServer := newMetricsServer(cfg.Server.Host, cfg.Server.MetricsPort)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go worker.Run(runCtx)
	logger.Info("scheduler started", "tick_interval", cfg.Scheduler.TickInterval)

	<-runCtx.Done()
	logger.Info("shutdown signal received, draining scheduler")
	worker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	logger.Info("scheduler stopped gracefully")
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
