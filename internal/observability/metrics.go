package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pixel_tracker"

var (
	activityCompletedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "last_activity_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completion applied by the engine.",
	})
	xpAwardedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "xp_awarded_total",
		Help:      "Experience points awarded across all users.",
	})
	completionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "completions_total",
		Help:      "Completions processed by the engine, labeled by outcome.",
	}, []string{"outcome"})
	levelUpCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "level_ups_total",
		Help:      "Level-up events emitted.",
	})
	achievementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "achievements_unlocked_total",
		Help:      "Achievements unlocked, labeled by code.",
	}, []string{"code"})
	statsCacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "cache_requests_total",
		Help:      "Stats cache lookups, labeled by result (hit, miss, error).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(activityCompletedGauge, xpAwardedCounter, completionsCounter, levelUpCounter, achievementCounter, statsCacheCounter)
}

// RecordCompletion updates engine counters after a committed completion.
func RecordCompletion(ts time.Time, xp int, leveledUp bool, unlocked []string) {
	completionsCounter.WithLabelValues("applied").Inc()
	if xp > 0 {
		xpAwardedCounter.Add(float64(xp))
	}
	if leveledUp {
		levelUpCounter.Inc()
	}
	for _, code := range unlocked {
		achievementCounter.WithLabelValues(code).Inc()
	}
	if !ts.IsZero() {
		activityCompletedGauge.Set(float64(ts.Unix()))
	}
}

// RecordCompletionFailed counts completions that were rolled back.
func RecordCompletionFailed() {
	completionsCounter.WithLabelValues("failed").Inc()
}

// RecordStatsCache counts a cache lookup outcome.
func RecordStatsCache(result string) {
	statsCacheCounter.WithLabelValues(result).Inc()
}
