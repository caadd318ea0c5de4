package realtime

import (
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "statuspage"

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Published events by outcome (queued, dropped, delivered, retry, failed)",
		},
		[]string{"event", "result"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "queue_depth",
			Help:      "Events waiting for delivery",
		},
	)

	subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "subscribers",
			Help:      "Connected websocket subscribers",
		},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent in a single transport delivery attempt",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"transport"},
	)
)

func recordEvent(name domain.EventName, result string) {
	eventsTotal.WithLabelValues(string(name), result).Inc()
}

func recordDeliveryDuration(transport string, duration time.Duration) {
	deliveryDuration.WithLabelValues(transport).Observe(duration.Seconds())
}
