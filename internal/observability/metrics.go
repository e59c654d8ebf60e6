// Package observability provides the Prometheus metrics shared across the
// orchestrator, scheduler, and geofence worker processes.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.AgentTurnCounter.WithLabelValues("discord", "success").Inc()
//	defer metrics.LLMRequestDuration.WithLabelValues("anthropic", "claude-3-opus").Observe(...)
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector emitted by the three worker
// processes. NewMetrics registers them all with the default registry.
type Metrics struct {
	// AgentTurnCounter counts completed agent-loop turns.
	// Labels: platform, outcome (success|refused|error)
	AgentTurnCounter *prometheus.CounterVec

	// AgentTurnDuration measures wall-clock time for one Handle call.
	// Labels: platform
	AgentTurnDuration *prometheus.HistogramVec

	// LLMRequestDuration measures LLM provider call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider, model, and status.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensTotal tracks token consumption by provider, model, direction.
	// Labels: provider, model, direction (input|output)
	LLMTokensTotal *prometheus.CounterVec

	// LLMCostUSD tracks estimated spend by provider and model.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ToolDispatchCounter counts tool dispatches by tool name and status.
	// Labels: tool_name, status (success|error)
	ToolDispatchCounter *prometheus.CounterVec

	// ToolDispatchDuration measures tool dispatch latency in seconds.
	// Labels: tool_name
	ToolDispatchDuration *prometheus.HistogramVec

	// SchedulerJobsProcessed counts scheduler tick outcomes.
	// Labels: job_type, outcome (success|failure|expired)
	SchedulerJobsProcessed *prometheus.CounterVec

	// GeofenceTriggersTotal counts geofence reminder firings.
	// Labels: trigger_on (enter|exit)
	GeofenceTriggersTotal *prometheus.CounterVec

	// NotificationsDelivered counts delivery router outcomes.
	// Labels: platform, status (success|error)
	NotificationsDelivered *prometheus.CounterVec

	// ErrorLogCounter mirrors errorlog.Service.Record by category.
	// Labels: service, category
	ErrorLogCounter *prometheus.CounterVec
}

// NewMetrics creates and registers every collector with Prometheus's
// default registry. Call once per process at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		AgentTurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_agent_turns_total",
				Help: "Total number of agent-loop turns by platform and outcome",
			},
			[]string{"platform", "outcome"},
		),
		AgentTurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_agent_turn_duration_seconds",
				Help:    "Duration of one agent-loop turn in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"platform"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_llm_request_duration_seconds",
				Help:    "Duration of LLM provider requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and direction",
			},
			[]string{"provider", "model", "direction"},
		),
		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_llm_cost_usd_total",
				Help: "Estimated LLM spend in USD by provider and model",
			},
			[]string{"provider", "model"},
		),
		ToolDispatchCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_tool_dispatches_total",
				Help: "Total number of tool dispatches by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolDispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_tool_dispatch_duration_seconds",
				Help:    "Duration of tool dispatches in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),
		SchedulerJobsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_scheduler_jobs_processed_total",
				Help: "Total number of scheduled jobs processed by job type and outcome",
			},
			[]string{"job_type", "outcome"},
		),
		GeofenceTriggersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_geofence_triggers_total",
				Help: "Total number of geofence reminders triggered by crossing direction",
			},
			[]string{"trigger_on"},
		),
		NotificationsDelivered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_notifications_delivered_total",
				Help: "Total number of notifications routed to platform adapters by status",
			},
			[]string{"platform", "status"},
		),
		ErrorLogCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_error_log_entries_total",
				Help: "Total number of error log entries recorded by service and category",
			},
			[]string{"service", "category"},
		),
	}
}
