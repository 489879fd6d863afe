// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OracleWindowsTotal tracks oracle windows by outcome (ok, failed, abandoned)
	OracleWindowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "oracle",
			Name:      "windows_total",
			Help:      "Total number of oracle windows by outcome",
		},
		[]string{"outcome"},
	)

	// OracleRetriesTotal tracks retried oracle attempts
	OracleRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "oracle",
			Name:      "retries_total",
			Help:      "Total number of retried oracle attempts",
		},
	)

	// OracleFallbackItemsTotal tracks candidates that received a fallback score
	OracleFallbackItemsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "oracle",
			Name:      "fallback_items_total",
			Help:      "Total number of candidates scored by fallback",
		},
	)

	// OracleRequestDuration tracks single oracle attempt duration
	OracleRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "oracle",
			Name:      "request_duration_seconds",
			Help:      "Duration of oracle attempts in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)

	// SimilarityRequestsTotal tracks similarity rankings by mode
	SimilarityRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "similarity",
			Name:      "requests_total",
			Help:      "Total number of similarity rankings by mode",
		},
		[]string{"mode"},
	)

	// SimilarityDuration tracks ranking duration
	SimilarityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "similarity",
			Name:      "duration_seconds",
			Help:      "Duration of similarity rankings in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	// DuplicateGroupsTotal tracks detected duplicate groups by kind
	DuplicateGroupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "duplicates",
			Name:      "groups_total",
			Help:      "Total number of duplicate groups detected by kind",
		},
		[]string{"kind"},
	)

	// RecommendationsTotal tracks recommendation runs by outcome (ok, empty, unavailable)
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "recommend",
			Name:      "requests_total",
			Help:      "Total number of recommendation runs by outcome",
		},
		[]string{"outcome"},
	)

	// CandidatesDroppedTotal tracks candidates dropped for an invalid criterion
	CandidatesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "recommend",
			Name:      "candidates_dropped_total",
			Help:      "Total number of candidates dropped by the failing criterion",
		},
		[]string{"criterion"},
	)

	// EventsPublishedTotal tracks events published to Kafka
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published by type and status",
		},
		[]string{"event_type", "status"},
	)

	// HTTPRequestDuration tracks API request duration by route and status code
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
