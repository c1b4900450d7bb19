package consumer

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeHandled      = "handled"
	outcomeHandlerError = "handler_error"
	outcomeMalformed    = "malformed"
)

var (
	recordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixel_tracker",
		Subsystem: "consumer",
		Name:      "records_total",
		Help:      "Kafka records seen by the processor, labeled by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	lastHandledGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pixel_tracker",
		Subsystem: "consumer",
		Name:      "last_handled_timestamp_seconds",
		Help:      "Broker timestamp of the newest record handled per topic.",
	}, []string{"topic"})

	notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixel_tracker",
		Subsystem: "notifications",
		Name:      "total",
		Help:      "Notification outcomes grouped by event type and result.",
	}, []string{"event_type", "result"})
)

func init() {
	prometheus.MustRegister(recordsCounter, lastHandledGauge, notificationCounter)
}

func recordProcessed(msg Message) {
	recordsCounter.WithLabelValues(msg.Topic, msg.EventType, outcomeHandled).Inc()
	if !msg.Timestamp.IsZero() {
		lastHandledGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	recordsCounter.WithLabelValues(msg.Topic, msg.EventType, outcomeHandlerError).Inc()
}

// Malformed records carry no trustworthy event type.
func recordDecodeError(topic string) {
	recordsCounter.WithLabelValues(topic, "unknown", outcomeMalformed).Inc()
}

func recordNotification(eventType, result string) {
	notificationCounter.WithLabelValues(eventType, result).Inc()
}
