package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StressRunDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lockfree_stress_run_duration_seconds",
			Help:    "Wall time of a stress run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"structure"},
	)

	StressViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockfree_stress_violations_total",
			Help: "Conservation or ordering violations detected by the stress verifier",
		},
		[]string{"structure", "kind"}, // duplicate, missing, order
	)
)

var (
	// RateLimitWaitsTotal counts producer pacing waits by outcome
	RateLimitWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockfree_rate_limit_waits_total",
			Help: "Producer pacing waits, by result",
		},
		[]string{"result"}, // allowed, cancelled
	)
)
