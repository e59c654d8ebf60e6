package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for all three worker processes
// (orchestrator, scheduler, geofence). Each binary loads the same file and
// reads only the sections it needs.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Bus         BusConfig         `yaml:"bus"`
	ServiceAuth ServiceAuthConfig `yaml:"service_auth"`
	Credentials CredentialsConfig `yaml:"credentials"`
	LLM         LLMConfig         `yaml:"llm"`
	Modules     ModulesConfig     `yaml:"modules"`
	Conversation ConversationConfig `yaml:"conversation"`
	Memory      MemoryConfig      `yaml:"memory"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Geofence    GeofenceConfig    `yaml:"geofence"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	Budget      BudgetConfig      `yaml:"budget"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the orchestrator's HTTP ingress.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig configures the shared Postgres/pgvector store.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// BusConfig configures the shared Redis pub/sub + KV cache.
type BusConfig struct {
	URL         string        `yaml:"url"`
	ManifestTTL time.Duration `yaml:"manifest_ttl"`
}

// ServiceAuthConfig configures the shared-secret bearer token used for all
// inter-service calls (orchestrator -> module, module -> orchestrator).
type ServiceAuthConfig struct {
	// SharedSecret, when empty, disables auth checking entirely. Intended
	// for local development only; the server logs a warning when unset.
	SharedSecret string `yaml:"shared_secret"`
}

// CredentialsConfig configures the user credential encryption key.
type CredentialsConfig struct {
	// EncryptionKey must decode (base64 std) to exactly 32 bytes (AES-256).
	EncryptionKey string `yaml:"encryption_key"`
}

// LLMConfig configures multi-provider LLM routing.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
	// FallbackChain is parsed from YAML but not read by the router; no
	// provider fallback is performed when DefaultProvider fails.
	FallbackChain []string      `yaml:"fallback_chain"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryBaseWait time.Duration `yaml:"retry_base_wait"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LLMProviderConfig configures one LLM provider adapter.
type LLMProviderConfig struct {
	APIKey         string `yaml:"api_key"`
	DefaultModel   string `yaml:"default_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	BaseURL        string `yaml:"base_url"`
}

// ModulesConfig configures tool-module discovery and dispatch.
type ModulesConfig struct {
	// Endpoints maps module name to its base URL (scheme://host:port).
	Endpoints         map[string]string `yaml:"endpoints"`
	ManifestPath      string            `yaml:"manifest_path"`
	ExecutePath       string            `yaml:"execute_path"`
	DispatchTimeout   time.Duration     `yaml:"dispatch_timeout"`
	ManifestRefresh   time.Duration     `yaml:"manifest_refresh"`
}

// ConversationConfig tunes conversation lifecycle behavior.
type ConversationConfig struct {
	InactivityWindow    time.Duration `yaml:"inactivity_window"`
	SummarizeAfterIdle  time.Duration `yaml:"summarize_after_idle"`
	MaxIterations       int           `yaml:"max_iterations"`
	ToolParallelism     int           `yaml:"tool_parallelism"`
}

// MemoryConfig tunes summarization and recall.
type MemoryConfig struct {
	SummaryTickInterval time.Duration `yaml:"summary_tick_interval"`
	RecallTopK          int           `yaml:"recall_top_k"`
	MaxTranscriptChars  int           `yaml:"max_transcript_chars"`
}

// SchedulerConfig tunes the scheduler worker.
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	ClaimBatch   int           `yaml:"claim_batch"`
}

// GeofenceConfig tunes the geofence worker.
type GeofenceConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`
}

// DeliveryConfig maps platform names to the webhook URL the delivery
// router POSTs notifications to. A platform with no configured webhook is
// logged and dropped rather than retried.
type DeliveryConfig struct {
	Webhooks       map[string]string `yaml:"webhooks"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
}

// BudgetConfig sets defaults for per-user token budgeting.
type BudgetConfig struct {
	DefaultMonthlyTokens *int64 `yaml:"default_monthly_tokens"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path, expands $ENV_VARS, resolves $include directives, decodes
// strictly (unknown fields reject), applies defaults, then validates.
func Load(path string) (*Config, error) {
	raw, err := loadRawRecursive(path, map[string]bool{})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("reserialize config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(string(payload)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Bus.ManifestTTL == 0 {
		cfg.Bus.ManifestTTL = time.Hour
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.RetryBaseWait == 0 {
		cfg.LLM.RetryBaseWait = time.Second
	}
	if cfg.LLM.RequestTimeout == 0 {
		cfg.LLM.RequestTimeout = 60 * time.Second
	}
	if cfg.Modules.ManifestPath == "" {
		cfg.Modules.ManifestPath = "/manifest"
	}
	if cfg.Modules.ExecutePath == "" {
		cfg.Modules.ExecutePath = "/execute"
	}
	if cfg.Modules.DispatchTimeout == 0 {
		cfg.Modules.DispatchTimeout = 30 * time.Second
	}
	if cfg.Modules.ManifestRefresh == 0 {
		cfg.Modules.ManifestRefresh = time.Hour
	}
	if cfg.Conversation.InactivityWindow == 0 {
		cfg.Conversation.InactivityWindow = 2 * time.Hour
	}
	if cfg.Conversation.SummarizeAfterIdle == 0 {
		cfg.Conversation.SummarizeAfterIdle = 24 * time.Hour
	}
	if cfg.Conversation.MaxIterations == 0 {
		cfg.Conversation.MaxIterations = 10
	}
	if cfg.Conversation.ToolParallelism == 0 {
		cfg.Conversation.ToolParallelism = 4
	}
	if cfg.Memory.SummaryTickInterval == 0 {
		cfg.Memory.SummaryTickInterval = 5 * time.Minute
	}
	if cfg.Memory.RecallTopK == 0 {
		cfg.Memory.RecallTopK = 5
	}
	if cfg.Memory.MaxTranscriptChars == 0 {
		cfg.Memory.MaxTranscriptChars = 12000
	}
	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = 15 * time.Second
	}
	if cfg.Scheduler.ClaimBatch == 0 {
		cfg.Scheduler.ClaimBatch = 50
	}
	if cfg.Geofence.TickInterval == 0 {
		cfg.Geofence.TickInterval = 30 * time.Second
	}
	if cfg.Geofence.StalenessThreshold == 0 {
		cfg.Geofence.StalenessThreshold = 10 * time.Minute
	}
	if cfg.Delivery.RequestTimeout == 0 {
		cfg.Delivery.RequestTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.Database.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("BUS_URL")); v != "" {
		cfg.Bus.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("SERVICE_AUTH_SHARED_SECRET")); v != "" {
		cfg.ServiceAuth.SharedSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("CREDENTIALS_ENCRYPTION_KEY")); v != "" {
		cfg.Credentials.EncryptionKey = v
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
}

// ConfigValidationError aggregates all validation failures for a single
// reportable error, matching the style of a batch config check.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if strings.TrimSpace(cfg.Database.URL) == "" {
		issues = append(issues, "database.url is required")
	}
	if strings.TrimSpace(cfg.Bus.URL) == "" {
		issues = append(issues, "bus.url is required")
	}
	if cfg.ServiceAuth.SharedSecret == "" {
		// allowed in dev, caller logs a warning; not a hard validation error
	}
	if strings.TrimSpace(cfg.Credentials.EncryptionKey) == "" {
		issues = append(issues, "credentials.encryption_key is required")
	}

	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if defaultProvider != "" {
		if _, ok := cfg.LLM.Providers[defaultProvider]; !ok {
			if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
				issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
			}
		}
	}
	if cfg.Conversation.MaxIterations <= 0 {
		issues = append(issues, "conversation.max_iterations must be > 0")
	}
	if cfg.Memory.RecallTopK < 0 {
		issues = append(issues, "memory.recall_top_k must be >= 0")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
