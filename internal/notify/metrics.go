package notify

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *centerMetrics
	metricsOnce   sync.Once
)

// centerMetrics holds Prometheus metrics for notification centers.
type centerMetrics struct {
	// Pushed counts stored notifications by type.
	Pushed *prometheus.CounterVec

	// Sessions tracks live notification centers.
	Sessions prometheus.Gauge
}

// newMetrics registers notification metrics once per process. sync.Once
// prevents duplicate-collector panics when multiple hubs exist (tests).
func newMetrics() *centerMetrics {
	metricsOnce.Do(func() {
		globalMetrics = &centerMetrics{
			Pushed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "notify_pushed_total",
					Help: "Total number of notifications pushed, by type",
				},
				[]string{"type"},
			),

			Sessions: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "notify_sessions",
					Help: "Number of live notification sessions",
				},
			),
		}
	})
	return globalMetrics
}
