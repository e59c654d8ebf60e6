// Package llmrouter provides a provider-independent chat/embed interface
// used by the agent loop and the memory service, with retry, cost
// estimation, and per-provider tool name sanitization pushed down into
// adapters under llmrouter/providers.
package llmrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaycore/assistant-core/internal/observability"
	"github.com/relaycore/assistant-core/internal/retrybackoff"
	"github.com/relaycore/assistant-core/pkg/models"
)

// ErrProviderNotConfigured indicates a request named a provider the router
// has no adapter for.
var ErrProviderNotConfigured = errors.New("llmrouter: provider not configured")

// ErrNoProvidersConfigured indicates the router was constructed with zero
// adapters.
var ErrNoProvidersConfigured = errors.New("llmrouter: no providers configured")

// ChatRequest carries every parameter a chat completion call needs.
type ChatRequest struct {
	Provider    string
	Model       string
	Messages    []models.ChatMessage
	Tools       []models.ToolDefinition
	MaxTokens   int
	Temperature float64
}

// EmbedRequest carries the parameters for an embedding call.
type EmbedRequest struct {
	Provider string
	Model    string
	Text     string
}

// Provider is the per-backend adapter interface. Implementations live
// under llmrouter/providers and handle tool name sanitization, message
// translation, and response translation for one LLM API.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*models.LLMResponse, error)
	Embed(ctx context.Context, req EmbedRequest) ([]float32, error)
}

// Router dispatches chat/embed calls to a named provider, retrying with
// exponential backoff and estimating USD cost from the per-model rate
// table.
type Router struct {
	providers       map[string]Provider
	defaultProvider string
	maxAttempts     int
	policy          retrybackoff.Policy
	rates           RateTable
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithMaxAttempts overrides the default retry attempt count (3, per the
// "up to 3 attempts" retry policy).
func WithMaxAttempts(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithRateTable overrides the default per-model cost table.
func WithRateTable(rates RateTable) Option {
	return func(r *Router) { r.rates = rates }
}

// WithPolicy overrides the default backoff policy between retry attempts.
func WithPolicy(policy retrybackoff.Policy) Option {
	return func(r *Router) { r.policy = policy }
}

// WithLogger overrides the router's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus instrumentation to every Chat call.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Router) { r.metrics = metrics }
}

// NewRouter constructs a Router over the given named providers.
func NewRouter(defaultProvider string, providers map[string]Provider, opts ...Option) (*Router, error) {
	if len(providers) == 0 {
		return nil, ErrNoProvidersConfigured
	}
	if _, ok := providers[defaultProvider]; !ok {
		return nil, fmt.Errorf("%w: default provider %q has no adapter", ErrProviderNotConfigured, defaultProvider)
	}
	r := &Router{
		providers:       providers,
		defaultProvider: defaultProvider,
		maxAttempts:     3,
		policy:          retrybackoff.LLMPolicy(),
		rates:           DefaultRateTable(),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Router) resolve(name string) (Provider, error) {
	if name == "" {
		name = r.defaultProvider
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotConfigured, name)
	}
	return p, nil
}

// Chat sends a chat completion request, retrying up to r.maxAttempts times
// with 2^attempt-second backoff. On final failure the provider error is
// surfaced to the caller, wrapped with the attempt count and provider name.
func (r *Router) Chat(ctx context.Context, req ChatRequest) (*models.LLMResponse, error) {
	provider, err := r.resolve(req.Provider)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := retrybackoff.Do(ctx, r.policy, r.maxAttempts, func(attempt int) (*models.LLMResponse, error) {
		resp, err := provider.Chat(ctx, req)
		if err != nil {
			r.logger.Warn("llm chat attempt failed",
				"provider", provider.Name(), "model", req.Model, "attempt", attempt, "error", err)
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		if r.metrics != nil {
			r.metrics.LLMRequestDuration.WithLabelValues(provider.Name(), req.Model).Observe(time.Since(start).Seconds())
			r.metrics.LLMRequestCounter.WithLabelValues(provider.Name(), req.Model, "error").Inc()
		}
		if errors.Is(err, retrybackoff.ErrAttemptsExhausted) {
			return nil, fmt.Errorf("llm chat exhausted %d attempts against %s: %w", r.maxAttempts, provider.Name(), err)
		}
		return nil, err
	}

	cost, warned := r.rates.Estimate(req.Model, result.Value.InputTokens, result.Value.OutputTokens)
	if warned {
		r.logger.Warn("cost estimate used conservative fallback for unknown model",
			"provider", provider.Name(), "model", req.Model)
	}
	r.logger.Info("llm chat completed",
		"provider", provider.Name(), "model", result.Value.Model,
		"input_tokens", result.Value.InputTokens, "output_tokens", result.Value.OutputTokens,
		"estimated_usd", cost, "attempts", result.Attempts, "stop_reason", result.Value.StopReason)

	if r.metrics != nil {
		r.metrics.LLMRequestDuration.WithLabelValues(provider.Name(), result.Value.Model).Observe(time.Since(start).Seconds())
		r.metrics.LLMRequestCounter.WithLabelValues(provider.Name(), result.Value.Model, "success").Inc()
		r.metrics.LLMTokensTotal.WithLabelValues(provider.Name(), result.Value.Model, "input").Add(float64(result.Value.InputTokens))
		r.metrics.LLMTokensTotal.WithLabelValues(provider.Name(), result.Value.Model, "output").Add(float64(result.Value.OutputTokens))
		r.metrics.LLMCostUSD.WithLabelValues(provider.Name(), result.Value.Model).Add(cost)
	}

	return result.Value, nil
}

// EstimateCost returns the estimated USD cost of a completed call, plus
// whether the estimate fell back to the conservative unknown-model rate.
func (r *Router) EstimateCost(model string, inputTokens, outputTokens int) (float64, bool) {
	return r.rates.Estimate(model, inputTokens, outputTokens)
}

// Embed produces an embedding vector for text, retrying like Chat.
func (r *Router) Embed(ctx context.Context, req EmbedRequest) ([]float32, error) {
	provider, err := r.resolve(req.Provider)
	if err != nil {
		return nil, err
	}

	result, err := retrybackoff.Do(ctx, r.policy, r.maxAttempts, func(attempt int) ([]float32, error) {
		vec, err := provider.Embed(ctx, req)
		if err != nil {
			r.logger.Warn("llm embed attempt failed",
				"provider", provider.Name(), "model", req.Model, "attempt", attempt, "error", err)
			return nil, err
		}
		return vec, nil
	})
	if err != nil {
		if errors.Is(err, retrybackoff.ErrAttemptsExhausted) {
			return nil, fmt.Errorf("llm embed exhausted %d attempts against %s: %w", r.maxAttempts, provider.Name(), err)
		}
		return nil, err
	}
	return result.Value, nil
}
