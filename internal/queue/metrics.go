package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hookrelay"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "size",
			Help:      "Number of notifications in queue by status",
		},
		[]string{"status"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Total delivery attempts by platform and result",
		},
		[]string{"platform", "result"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "duration_seconds",
			Help:      "Time to complete one delivery attempt",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"platform"},
	)

	passesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "passes_total",
			Help:      "Total processing passes started (gated passes included)",
		},
	)

	claimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "claimed_total",
			Help:      "Total notifications claimed for processing",
		},
	)

	reclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "reclaimed_total",
			Help:      "Total stuck processing notifications returned to pending",
		},
	)
)

func recordDelivery(platform, result string, duration time.Duration) {
	deliveriesTotal.WithLabelValues(platform, result).Inc()
	deliveryDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

func recordPass(claimed int) {
	passesTotal.Inc()
	claimedTotal.Add(float64(claimed))
}

func recordReclaimed(count int64) {
	reclaimedTotal.Add(float64(count))
}

// RecordStats updates queue size metrics.
func RecordStats(stats *Stats) {
	queueSize.WithLabelValues(string(StatusPending)).Set(float64(stats.Pending))
	queueSize.WithLabelValues(string(StatusProcessing)).Set(float64(stats.Processing))
	queueSize.WithLabelValues(string(StatusCompleted)).Set(float64(stats.Completed))
	queueSize.WithLabelValues(string(StatusFailed)).Set(float64(stats.Failed))
}
