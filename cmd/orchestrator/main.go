// Package main is the entry point for the orchestrator process: the HTTP
// ingress, agent loop, conversation and memory services, and the
// notification delivery router all run in this binary.
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

	"github.com/relaycore/assistant-core/internal/agent"
	"github.com/relaycore/assistant-core/internal/bus"
	"github.com/relaycore/assistant-core/internal/config"
	"github.com/relaycore/assistant-core/internal/conversation"
	"github.com/relaycore/assistant-core/internal/credentials"
	"github.com/relaycore/assistant-core/internal/delivery"
	"github.com/relaycore/assistant-core/internal/errorlog"
	"github.com/relaycore/assistant-core/internal/httpapi"
	"github.com/relaycore/assistant-core/internal/llmrouter"
	"github.com/relaycore/assistant-core/internal/llmrouter/providers"
	"github.com/relaycore/assistant-core/internal/memory"
	"github.com/relaycore/assistant-core/internal/observability"
	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/internal/svcauth"
	"github.com/relaycore/assistant-core/internal/toolregistry"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("orchestrator exited with error", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "orchestrator",
		Short:   "Runs the multi-channel assistant orchestration core",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "orchestrator.yaml", "path to the shared config file")
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

	authSvc := svcauth.New(cfg.ServiceAuth.SharedSecret, logger)
	metrics := observability.NewMetrics()
	errorLogs := errorlog.New(store.ErrorLogs, metrics, logger)

	router, err := buildLLMRouter(cfg, metrics, logger)
	if err != nil {
		return fmt.Errorf("build llm router: %w", err)
	}

	creds, err := credentials.New(store.UserCredentials, cfg.Credentials.EncryptionKey)
	if err != nil {
		return fmt.Errorf("build credentials service: %w", err)
	}

	tools := toolregistry.New(toolregistry.Config{
		Endpoints:       cfg.Modules.Endpoints,
		ManifestPath:    cfg.Modules.ManifestPath,
		ExecutePath:     cfg.Modules.ExecutePath,
		DispatchTimeout: cfg.Modules.DispatchTimeout,
		Metrics:         metrics,
	}, messageBus, authSvc, logger)
	tools.RefreshAll(ctx)

	convSvc := conversation.New(store.Conversations, store.Messages, cfg.Conversation.InactivityWindow)

	memSvc := memory.New(store.Conversations, store.Messages, store.MemorySummaries, store.TokenLogs, router, memory.Config{
		SummarizeAfterIdle: cfg.Conversation.SummarizeAfterIdle,
		MaxTranscriptChars: cfg.Memory.MaxTranscriptChars,
		RecallTopK:         cfg.Memory.RecallTopK,
	}, logger)

	agentSvc := agent.New(agent.Deps{
		Users:         store.Users,
		PlatformLinks: store.PlatformLinks,
		Personas:      store.Personas,
		Conversations: convSvc,
		Memory:        memSvc,
		Tools:         tools,
		Router:        router,
		TokenLogs:     store.TokenLogs,
		ErrorLogs:     errorLogs,
		Credentials:   creds,
	}, agent.Config{
		MaxIterations:   cfg.Conversation.MaxIterations,
		ToolParallelism: cfg.Conversation.ToolParallelism,
		EnableRecall:    true,
	}, logger)

	deliverers := buildDeliverers(cfg, logger)
	deliveryRouter := delivery.New(messageBus, deliverers, metrics, logger)

	embedProvider := cfg.LLM.DefaultProvider
	embedModel := ""
	if p, ok := cfg.LLM.Providers[embedProvider]; ok {
		embedModel = p.EmbeddingModel
	}

	server := httpapi.NewServer(httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.HTTPPort,
		Mode: "release",
	}, agentSvc, router, embedProvider, embedModel, authSvc, metrics, logger)

	metricsServer := newMetricsServer(cfg.Server.Host, cfg.Server.MetricsPort)

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server.Start()
	logger.Info("orchestrator started", "host", cfg.Server.Host, "port", cfg.Server.HTTPPort)

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics endpoint started", "host", cfg.Server.Host, "port", cfg.Server.MetricsPort)

	go runMemoryTicker(runCtx, memSvc, cfg.Memory.SummaryTickInterval, logger)
	go func() {
		if err := deliveryRouter.Run(runCtx); err != nil {
			logger.Error("delivery router stopped", "error", err)
		}
	}()

	<-runCtx.Done()
	logger.Info("shutdown signal received, draining orchestrator")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	logger.Info("orchestrator stopped gracefully")
	return nil
}

func newMetricsServer(host string, port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: fmt.Sprintf("%s:%d", host, port), Handler: mux}
}

func runMemoryTicker(ctx context.Context, memSvc *memory.Service, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := memSvc.Tick(ctx, 50); err != nil {
				logger.Error("memory tick failed", "error", err)
			}
		}
	}
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

func buildLLMRouter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*llmrouter.Router, error) {
	adapters := map[string]llmrouter.Provider{}
	for name, p := range cfg.LLM.Providers {
		switch name {
		case "anthropic":
			provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
				APIKey:         p.APIKey,
				BaseURL:        p.BaseURL,
				DefaultModel:   p.DefaultModel,
				EmbeddingModel: p.EmbeddingModel,
			})
			if err != nil {
				logger.Warn("anthropic provider unavailable", "error", err)
				continue
			}
			adapters[name] = provider
		case "openai":
			provider, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
				APIKey:         p.APIKey,
				BaseURL:        p.BaseURL,
				DefaultModel:   p.DefaultModel,
				EmbeddingModel: p.EmbeddingModel,
			})
			if err != nil {
				logger.Warn("openai provider unavailable", "error", err)
				continue
			}
			adapters[name] = provider
		}
	}
	return llmrouter.NewRouter(cfg.LLM.DefaultProvider, adapters,
		llmrouter.WithMaxAttempts(cfg.LLM.MaxRetries),
		llmrouter.WithLogger(logger),
		llmrouter.WithMetrics(metrics),
	)
}

func buildDeliverers(cfg *config.Config, logger *slog.Logger) map[string]delivery.Deliverer {
	client := &http.Client{Timeout: cfg.Delivery.RequestTimeout}
	deliverers := make(map[string]delivery.Deliverer, len(cfg.Delivery.Webhooks))
	for platform, url := range cfg.Delivery.Webhooks {
		if url == "" {
			continue
		}
		deliverers[platform] = delivery.NewWebhookDeliverer(url, client)
	}
	if len(deliverers) == 0 {
		logger.Warn("no delivery webhooks configured; notifications will be logged and dropped")
	}
	return deliverers
}
