package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal counts billing webhook deliveries by event type and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelfox",
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Billing webhook deliveries by event type and outcome (applied, skipped, rejected, failed).",
	}, []string{"event_type", "outcome"})

	// GateDenialsTotal counts plan gate denials by gate and reason.
	GateDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelfox",
		Subsystem: "plans",
		Name:      "gate_denials_total",
		Help:      "Requests denied by a plan gate.",
	}, []string{"gate", "reason"})

	// ScanRequestsTotal counts calls to the ML scan service by result.
	ScanRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelfox",
		Subsystem: "scan",
		Name:      "requests_total",
		Help:      "ML scan attempts by result.",
	}, []string{"result"})

	// ScanDuration tracks ML scan latency including retries.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "labelfox",
		Subsystem: "scan",
		Name:      "duration_seconds",
		Help:      "ML scan duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// ReportJobsTotal counts report job transitions.
	ReportJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelfox",
		Subsystem: "reports",
		Name:      "jobs_total",
		Help:      "Report jobs by final state (completed, failed, requeued).",
	}, []string{"state"})
)
