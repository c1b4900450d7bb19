package domain

import (
	"sort"
	"time"
)

// DefaultStatsDays is the window of the stats view.
const DefaultStatsDays = 7

// MaxStatsDays bounds the stats window.
const MaxStatsDays = 366

// TopActivitiesLimit is the number of entries in StatsSummary.TopActivities.
const TopActivitiesLimit = 5

// NamedTotal is a duration total keyed by an activity name or category.
type NamedTotal struct {
	Name    string `json:"name"`
	Seconds int64  `json:"seconds"`
}

// DailyTotal is the tracked time of one UTC calendar day.
type DailyTotal struct {
	Date    time.Time `json:"date"`
	Seconds int64     `json:"seconds"`
}

// StatsSummary is the aggregated view shown on the stats page.
type StatsSummary struct {
	WindowDays           int           `json:"window_days"`
	From                 time.Time     `json:"from"`
	TotalDurationSeconds int64         `json:"total_duration_seconds"`
	ActivityCount        int           `json:"activity_count"`
	Daily                []DailyTotal  `json:"daily"`
	Categories           []NamedTotal  `json:"categories"`
	TopActivities        []NamedTotal  `json:"top_activities"`
	TodaySeconds         int64         `json:"today_seconds"`
	DailyGoalSeconds     int64         `json:"daily_goal_seconds"`
	DailyGoalReached     bool          `json:"daily_goal_reached"`
	Level                LevelProgress `json:"level"`
}

// WindowStart returns the first instant of a days-long window ending today.
func WindowStart(now time.Time, days int) time.Time {
	return CalendarDate(now).AddDate(0, 0, -(days - 1))
}

// Summarize aggregates completed records ending inside [from, now]. Days are zero-filled and
// ordered oldest first; categories are ordered by total, largest first.
func Summarize(records []ActivityRecord, days int, now time.Time) StatsSummary {
	from := WindowStart(now, days)
	summary := StatsSummary{
		WindowDays: days,
		From:       from,
		Daily:      make([]DailyTotal, days),
	}
	index := make(map[time.Time]int, days)
	for i := 0; i < days; i++ {
		d := from.AddDate(0, 0, i)
		summary.Daily[i] = DailyTotal{Date: d}
		index[d] = i
	}

	today := CalendarDate(now)
	byCategory := make(map[string]int64)
	for _, rec := range records {
		if rec.EndedAt == nil || rec.EndedAt.Before(from) || rec.EndedAt.After(now) {
			continue
		}
		summary.TotalDurationSeconds += rec.DurationSeconds
		summary.ActivityCount++
		day := CalendarDate(*rec.EndedAt)
		if i, ok := index[day]; ok {
			summary.Daily[i].Seconds += rec.DurationSeconds
		}
		if day.Equal(today) {
			summary.TodaySeconds += rec.DurationSeconds
		}
		if rec.Category != "" {
			byCategory[rec.Category] += rec.DurationSeconds
		}
	}

	summary.Categories = make([]NamedTotal, 0, len(byCategory))
	for name, secs := range byCategory {
		summary.Categories = append(summary.Categories, NamedTotal{Name: name, Seconds: secs})
	}
	SortTotals(summary.Categories)
	return summary
}

// SortTotals orders totals by seconds descending, then by name.
func SortTotals(totals []NamedTotal) {
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Seconds != totals[j].Seconds {
			return totals[i].Seconds > totals[j].Seconds
		}
		return totals[i].Name < totals[j].Name
	})
}
