// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarybot_runs_total",
			Help: "Total number of summary runs by trigger and final state",
		},
		[]string{"trigger", "state"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "summarybot_run_duration_seconds",
			Help:    "Duration of summary runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	ScopeResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarybot_scope_results_total",
			Help: "Total number of per-scope outcomes by status",
		},
		[]string{"status"},
	)

	// LLM metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarybot_llm_calls_total",
			Help: "Total number of LLM calls",
		},
		[]string{"provider", "status"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "summarybot_llm_call_duration_seconds",
			Help:    "Duration of LLM calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Discord metrics
	PublishOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarybot_publish_operations_total",
			Help: "Total number of Discord publish operations",
		},
		[]string{"operation", "status"},
	)

	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarybot_messages_ingested_total",
			Help: "Total number of gateway messages handled by the ingestion queue",
		},
		[]string{"status"},
	)

	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "summarybot_ingest_queue_depth",
			Help: "Number of messages waiting in the ingestion queue",
		},
	)
)
