package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Replay outcomes reported by the DLQ manager.
const (
	replayRequeued    = "requeued"
	replayQuarantined = "quarantined"
	replayDeferred    = "deferred"
)

var (
	dlqReplayCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixel_tracker",
		Subsystem: "dlq",
		Name:      "replays_total",
		Help:      "Dead-letter entries handled by the replay loop, labeled by event type and outcome.",
	}, []string{"event_type", "outcome"})

	dlqDepthGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pixel_tracker",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Dead-letter rows by state (pending, quarantined).",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(dlqReplayCounter, dlqDepthGauge)
}

func recordReplay(entry dlqEntry, outcome string) {
	dlqReplayCounter.WithLabelValues(entry.EventType, outcome).Inc()
}

// refreshDepth samples the DLQ size. Errors leave the previous values in place.
func refreshDepth(ctx context.Context, pool *pgxpool.Pool) {
	var pending, quarantined int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL),
		       COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
		FROM outbox_dlq`).Scan(&pending, &quarantined)
	if err != nil {
		return
	}
	dlqDepthGauge.WithLabelValues("pending").Set(float64(pending))
	dlqDepthGauge.WithLabelValues("quarantined").Set(float64(quarantined))
}
