// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "partner_engine"

var (
	ClicksRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clicks_recorded_total",
		Help:      "Clicks processed by the tracker, by result (new, duplicate).",
	}, []string{"result"})

	ClicksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clicks_dropped_total",
		Help:      "Clicks dropped because the click queue was full.",
	})

	ClickQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "click_queue_depth",
		Help:      "Clicks waiting in the in-memory queue.",
	})

	Conversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversions_total",
		Help:      "Conversions recorded, by attribution model.",
	}, []string{"model"})

	OrderEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_events_total",
		Help:      "Order events handled, by type and result.",
	}, []string{"type", "result"})

	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commission_resolutions_total",
		Help:      "Commission policy resolutions, by outcome.",
	}, []string{"outcome"})

	ConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "usage_conflict_retries_total",
		Help:      "Optimistic usage-cap conflicts that were retried.",
	})

	SettlementBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_batches_total",
		Help:      "Settlement batch transitions, by resulting status.",
	}, []string{"status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
