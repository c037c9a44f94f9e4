package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenscore_upstream_calls_total",
			Help: "Total upstream API calls by upstream and outcome status",
		},
		[]string{"upstream", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greenscore_upstream_latency_seconds",
			Help:    "Upstream API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)

	PresenceLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenscore_presence_lookups_total",
			Help: "Diplomatic presence lookups by outcome (hit, miss, fallback)",
		},
		[]string{"outcome"},
	)

	ScoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenscore_scores_total",
			Help: "Completed score aggregations by risk category",
		},
		[]string{"category"},
	)

	StageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenscore_stage_failures_total",
			Help: "Fatal aggregation failures by stage",
		},
		[]string{"stage"},
	)
)
