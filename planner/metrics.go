package planner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rolloutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "texplore",
		Subsystem: "planner",
		Name:      "rollouts_total",
		Help:      "Total number of completed UCT rollouts.",
	})

	modelSwapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "texplore",
		Subsystem: "planner",
		Name:      "model_swaps_total",
		Help:      "Total number of retrained models published to the search goroutine.",
	})

	experiencesQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "texplore",
		Subsystem: "planner",
		Name:      "experiences_queued",
		Help:      "Experiences waiting for the learner goroutine.",
	})

	stateSpaceSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "texplore",
		Subsystem: "planner",
		Name:      "states",
		Help:      "Number of canonical states known to the most recently grown planner.",
	})

	bestActionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "texplore",
		Subsystem: "planner",
		Name:      "best_action_seconds",
		Help:      "Wall-clock time spent in GetBestAction.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)
