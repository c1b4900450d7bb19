package outbox

import "github.com/prometheus/client_golang/prometheus"

// Per-message results of a dispatch attempt.
const (
	resultDelivered    = "delivered"
	resultDeadLettered = "dead_lettered"
)

var (
	dispatchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixel_tracker",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox rows handled by the dispatcher, labeled by topic and result.",
	}, []string{"topic", "result"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pixel_tracker",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of one claim, publish and mark cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(dispatchCounter, batchDuration)
}

func countDispatch(messages []Message, result string) {
	for _, msg := range messages {
		dispatchCounter.WithLabelValues(msg.Topic, result).Inc()
	}
}
