package lifecycle

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *metrics
	metricsOnce   sync.Once
)

// metrics holds Prometheus metrics for the update lifecycle.
type metrics struct {
	// UpdatesPosted counts persisted updates by category.
	UpdatesPosted *prometheus.CounterVec

	// SuggestionsTotal counts suggestion outcomes:
	// shown, accepted, routine, discarded.
	SuggestionsTotal *prometheus.CounterVec

	// ClassificationFailures counts degraded submissions.
	ClassificationFailures prometheus.Counter
}

// newMetrics registers lifecycle metrics once per process. sync.Once
// prevents duplicate-collector panics when multiple managers exist
// (tests, multi-tenant wiring).
func newMetrics() *metrics {
	metricsOnce.Do(func() {
		globalMetrics = &metrics{
			UpdatesPosted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "feed_updates_posted_total",
					Help: "Total number of daily updates persisted",
				},
				[]string{"category"},
			),

			SuggestionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "feed_suggestions_total",
					Help: "Total number of AI suggestions by outcome",
				},
				[]string{"outcome"},
			),

			ClassificationFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "feed_classification_failures_total",
					Help: "Total number of submissions that degraded to manual posting",
				},
			),
		}
	})
	return globalMetrics
}
