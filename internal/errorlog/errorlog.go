// Package errorlog provides the centralized, append-only error capture
// used by the orchestrator, scheduler, and geofence worker: every
// unhandled failure is recorded with key material redacted from its
// message and tool arguments before it ever reaches the store.
package errorlog

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/internal/observability"
	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/pkg/models"
)

// secretPattern pairs a name with a compiled pattern matching one class of
// credential that must never be persisted in plaintext.
type secretPattern struct {
	name    string
	pattern *regexp.Regexp
}

var secretPatterns = []secretPattern{
	{"api_key", regexp.MustCompile(`(?i)(api[_-]?key|apikey)['"]?\s*[:=]\s*['"]?[\w-]{20,}['"]?`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[\w\-.]+`)},
	{"generic_secret", regexp.MustCompile(`(?i)(password|passwd|secret|token)['"]?\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`)},
	{"private_key", regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
}

const redacted = "[REDACTED]"

// Redact replaces any detected secret-shaped substring in s with a
// placeholder. Used on error messages and tool arguments before they are
// written to the error log.
func Redact(s string) string {
	for _, sp := range secretPatterns {
		s = sp.pattern.ReplaceAllString(s, redacted)
	}
	return s
}

// Service records redacted error entries asynchronously so a capture
// failure or slow write never blocks the caller's request path.
type Service struct {
	store   storage.ErrorLogStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New constructs an errorlog Service. metrics may be nil to disable
// per-entry instrumentation.
func New(store storage.ErrorLogStore, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, metrics: metrics}
}

// Entry describes one failure to capture.
type Entry struct {
	Service  string
	Category models.ErrorCategory
	ToolName string
	ToolArgs string
	Message  string
	Stack    string
}

// Record redacts e's message/args/stack and writes the entry in the
// background, logging (not returning) a write failure.
func (s *Service) Record(ctx context.Context, e Entry) {
	if s == nil || s.store == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.ErrorLogCounter.WithLabelValues(e.Service, string(e.Category)).Inc()
	}
	row := &models.ErrorLog{
		ID:       uuid.NewString(),
		Service:  e.Service,
		Category: e.Category,
		ToolName: e.ToolName,
		ToolArgs: Redact(e.ToolArgs),
		Message:  Redact(e.Message),
		Stack:    Redact(e.Stack),
		Status:   models.ErrorOpen,
		CreatedAt: time.Now(),
	}
	go func() {
		if err := s.store.Create(context.Background(), row); err != nil {
			s.logger.Error("error log write failed", "service", e.Service, "category", e.Category, "error", err)
		}
	}()
}
