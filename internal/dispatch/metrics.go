package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes per-tick dispatch stats on /metrics — the live
// counterpart to the stat table's persisted counters.
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dispatch",
		Name:      "tick_duration_seconds",
		Help:      "Wall-clock duration of one dispatch tick.",
		Buckets:   prometheus.DefBuckets,
	})
	ordersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "orders_placed_total",
		Help:      "Orders placed, by dispatch stage.",
	}, []string{"stage"})
	ordersUnmatched = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatch",
		Name:      "orders_unmatched",
		Help:      "Orders left unmatched at the end of the most recent tick.",
	})
	poolSizeFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "pools_found_total",
		Help:      "Pools formed, by pool size.",
	}, []string{"size"})
	ordersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "orders_expired_total",
		Help:      "Orders refused for exceeding the max assign time before a cab was found.",
	})
)
