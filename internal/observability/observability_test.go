package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	logger, err := NewLogger("pixel-tracker-test", "warn", "console")
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = NewLogger("pixel-tracker-test", "", "")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger("pixel-tracker-test", "loud", "json")
	require.ErrorContains(t, err, `parse log level "loud"`)
}

func TestRecordCompletion(t *testing.T) {
	applied := testutil.ToFloat64(completionsCounter.WithLabelValues("applied"))
	xp := testutil.ToFloat64(xpAwardedCounter)
	levels := testutil.ToFloat64(levelUpCounter)
	marathons := testutil.ToFloat64(achievementCounter.WithLabelValues("marathon_runner"))

	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	RecordCompletion(at, 120, true, []string{"marathon_runner"})
	RecordCompletion(time.Time{}, 0, false, nil)

	require.Equal(t, applied+2, testutil.ToFloat64(completionsCounter.WithLabelValues("applied")))
	require.Equal(t, xp+120, testutil.ToFloat64(xpAwardedCounter))
	require.Equal(t, levels+1, testutil.ToFloat64(levelUpCounter))
	require.Equal(t, marathons+1, testutil.ToFloat64(achievementCounter.WithLabelValues("marathon_runner")))
	require.Equal(t, float64(at.Unix()), testutil.ToFloat64(activityCompletedGauge))
}
