// ABOUTME: Prometheus collectors describing connection pool usage
// ABOUTME: Registered globally at init and updated by Acquire and Release

package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	poolSizeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prachand_pool_connections",
			Help: "Number of connections owned by the connection pool.",
		},
	)
	inUseGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prachand_pool_connections_in_use",
			Help: "Number of pooled connections currently leased to a request.",
		},
	)
	acquireWaitHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prachand_pool_acquire_wait_seconds",
			Help:    "Time spent waiting for a pooled connection.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
	acquireCanceledCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prachand_pool_acquire_canceled_total",
			Help: "Counts Acquire calls abandoned because the caller's context ended.",
		},
	)
)

func init() {
	prometheus.MustRegister(poolSizeGauge)
	prometheus.MustRegister(inUseGauge)
	prometheus.MustRegister(acquireWaitHistogram)
	prometheus.MustRegister(acquireCanceledCounter)
}
