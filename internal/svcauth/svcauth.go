// Package svcauth implements the shared-secret bearer token used for
// inter-service calls between the orchestrator, scheduler, geofence
// worker, and tool modules.
package svcauth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Service holds the shared secret used to authenticate inter-service
// requests. An empty secret disables enforcement (dev mode); New logs a
// warning when a Service is constructed this way.
type Service struct {
	secret string
	logger *slog.Logger
}

// New constructs a Service. An empty secret disables the bearer check and
// logs a warning, since this should never happen outside local development.
func New(secret string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if secret == "" {
		logger.Warn("service auth disabled: no shared secret configured; refusing to enforce inter-service auth")
	}
	return &Service{secret: secret, logger: logger}
}

// Enabled reports whether bearer token enforcement is active.
func (s *Service) Enabled() bool {
	return s != nil && s.secret != ""
}

func (s *Service) valid(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) == 1
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// GinMiddleware rejects requests lacking a valid Authorization: Bearer
// <secret> header. A no-op when the service is disabled.
func (s *Service) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Enabled() {
			c.Next()
			return
		}
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" || !s.valid(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid bearer token"})
			return
		}
		c.Next()
	}
}

// SetBearer attaches the shared secret to an outbound request. A no-op
// when the service is disabled.
func (s *Service) SetBearer(req *http.Request) {
	if !s.Enabled() {
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.secret)
}
