// Package httpapi implements the orchestrator's HTTP ingress: POST
// /message (one agent-loop turn), POST /embed (direct embedding passthrough
// for adapters that need it), and GET /health.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relaycore/assistant-core/internal/llmrouter"
	"github.com/relaycore/assistant-core/internal/observability"
	"github.com/relaycore/assistant-core/internal/svcauth"
	"github.com/relaycore/assistant-core/pkg/models"
)

// AgentHandler runs one orchestrator turn for an inbound message or a
// resumed scheduled job.
type AgentHandler interface {
	Handle(ctx context.Context, in models.IncomingMessage) (*models.AgentResponse, error)
	ResumeJob(ctx context.Context, userID, platform, channelID string, threadID *string, content string) (*models.AgentResponse, error)
}

// Config configures the HTTP ingress server.
type Config struct {
	Host string
	Port int
	Mode string // debug, release
}

// Server wraps the orchestrator's gin engine and its underlying http.Server.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer builds the orchestrator's HTTP ingress. metrics may be nil to
// disable per-request instrumentation.
func NewServer(cfg Config, agent AgentHandler, embedRouter *llmrouter.Router, embedProvider, embedModel string, auth *svcauth.Service, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(slogMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	protected.Use(auth.GinMiddleware())
	protected.POST("/message", handleMessage(agent, metrics, logger))
	protected.POST("/embed", handleEmbed(embedRouter, embedProvider, embedModel))
	protected.POST("/internal/resume", handleResume(agent, logger))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
	}
}

// Start begins serving in the background. Errors after shutdown are
// expected and not reported.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func handleMessage(agent AgentHandler, metrics *observability.Metrics, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		var in models.IncomingMessage
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		start := time.Now()
		resp, err := agent.Handle(c.Request.Context(), in)

		if metrics != nil {
			metrics.AgentTurnDuration.WithLabelValues(in.Platform).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			logger.Error("agent handle failed", "platform", in.Platform, "error", err)
			if metrics != nil {
				metrics.AgentTurnCounter.WithLabelValues(in.Platform, "error").Inc()
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if metrics != nil {
			outcome := "success"
			if resp.Error != "" {
				outcome = "refused"
			}
			metrics.AgentTurnCounter.WithLabelValues(in.Platform, outcome).Inc()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// resumeRequestBody is posted by the scheduler worker to re-enter the
// turn loop on job completion, using the job's stored routing fields
// rather than a platform identity.
type resumeRequestBody struct {
	UserID    string  `json:"user_id" binding:"required"`
	Platform  string  `json:"platform" binding:"required"`
	ChannelID string  `json:"channel_id" binding:"required"`
	ThreadID  *string `json:"thread_id,omitempty"`
	Content   string  `json:"content" binding:"required"`
}

func handleResume(agent AgentHandler, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		var body resumeRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp, err := agent.ResumeJob(c.Request.Context(), body.UserID, body.Platform, body.ChannelID, body.ThreadID, body.Content)
		if err != nil {
			logger.Error("resume job failed", "user_id", body.UserID, "platform", body.Platform, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

type embedRequestBody struct {
	Text string `json:"text" binding:"required"`
}

func handleEmbed(router *llmrouter.Router, provider, model string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body embedRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		vec, err := router.Embed(c.Request.Context(), llmrouter.EmbedRequest{Provider: provider, Model: model, Text: body.Text})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "embedding failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"embedding": vec})
	}
}

func slogMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
