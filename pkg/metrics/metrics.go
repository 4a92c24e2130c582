package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginOutcomes records login attempts by endpoint (login|force_login) and outcome.
	LoginOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_login_outcomes_total",
			Help: "Login attempts partitioned by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	// SessionValidations counts session validations by result (valid|invalid|error) and source (cache|store).
	SessionValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_session_validations_total",
			Help: "Total number of session validations",
		},
		[]string{"result", "source"},
	)

	// ActiveSessions tracks rows whose session is live.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "learnhub_active_sessions",
			Help: "Number of users with a live session",
		},
	)

	// MaintenanceRows counts rows touched by maintenance jobs per step.
	MaintenanceRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_maintenance_rows_total",
			Help: "Rows affected by maintenance steps",
		},
		[]string{"step"},
	)

	// MaintenanceRuns counts maintenance job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_maintenance_runs_total",
			Help: "Maintenance job executions",
		},
		[]string{"job", "result"},
	)

	// EventsPublished counts session events by sink and result.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_session_events_total",
			Help: "Session lifecycle events delivered to sinks",
		},
		[]string{"sink", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "learnhub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
