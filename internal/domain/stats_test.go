package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSummarizeZeroFillsAndGroups(t *testing.T) {
	now := time.Date(2024, 6, 7, 18, 0, 0, 0, time.UTC)
	at := func(daysAgo int, hour int) *time.Time {
		ts := CalendarDate(now).AddDate(0, 0, -daysAgo).Add(time.Duration(hour) * time.Hour)
		return &ts
	}
	records := []ActivityRecord{
		{ID: "1", Name: "Coding", Category: "Работа", EndedAt: at(0, 9), DurationSeconds: 3600},
		{ID: "2", Name: "Gym", Category: "Спорт", EndedAt: at(0, 10), DurationSeconds: 1800},
		{ID: "3", Name: "Coding", Category: "Работа", EndedAt: at(6, 10), DurationSeconds: 600},
		{ID: "4", Name: "Old", Category: "Работа", EndedAt: at(7, 10), DurationSeconds: 999},
		{ID: "5", Name: "Running", StartedAt: now},
	}

	summary := Summarize(records, 7, now)
	require.Equal(t, 7, summary.WindowDays)
	require.Len(t, summary.Daily, 7)
	require.Equal(t, CalendarDate(now).AddDate(0, 0, -6), summary.Daily[0].Date)
	require.EqualValues(t, 600, summary.Daily[0].Seconds)
	require.EqualValues(t, 5400, summary.Daily[6].Seconds)
	for _, d := range summary.Daily[1:6] {
		require.Zero(t, d.Seconds)
	}
	require.EqualValues(t, 6000, summary.TotalDurationSeconds)
	require.Equal(t, 3, summary.ActivityCount)
	require.EqualValues(t, 5400, summary.TodaySeconds)
	require.Equal(t, []NamedTotal{{Name: "Работа", Seconds: 4200}, {Name: "Спорт", Seconds: 1800}}, summary.Categories)
}
