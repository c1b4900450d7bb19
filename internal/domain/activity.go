package domain

import (
	"sort"
	"strings"
	"time"
)

// RecentDatesWindow is the number of most recent completed activities whose dates feed
// ActivityStats.RecentActivityDates.
const RecentDatesWindow = 5

// DefaultCategories are offered to new users by the clients.
var DefaultCategories = []string{"Работа", "Учеба", "Отдых", "Спорт", "Другое"}

// ActivityRecord is a timed activity owned by a user. EndedAt is nil while it is running.
type ActivityRecord struct {
	ID              string
	UserID          string
	Name            string
	Category        string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int64
}

// InProgress reports whether the activity is still running.
func (a ActivityRecord) InProgress() bool {
	return a.EndedAt == nil
}

// ActivityStats is the aggregate view of a user's completed activities that achievement
// predicates are evaluated against.
type ActivityStats struct {
	TotalDurationSeconds  int64
	TotalActivityCount    int
	DistinctActivityKinds int
	// RecentActivityDates holds UTC calendar dates of the most recent completed activities,
	// newest first, one entry per activity.
	RecentActivityDates []time.Time
}

// Cursor models the pagination token for activity listings.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// StartActivityInput captures a start request.
type StartActivityInput struct {
	Name     string
	Category string
	At       time.Time
}

// LogActivityInput records an activity that already happened, e.g. "Reading, 30 minutes".
type LogActivityInput struct {
	Name            string
	Category        string
	DurationSeconds int64
	EndedAt         time.Time
}

// NormalizeKind folds an activity name into the key used to count distinct kinds.
func NormalizeKind(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CalendarDate truncates t to its UTC calendar date.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StatsFromRecords aggregates completed records. It backs the in-memory store and tests; the
// Postgres store computes the same values in SQL.
func StatsFromRecords(records []ActivityRecord, since *time.Time) ActivityStats {
	var stats ActivityStats
	kinds := make(map[string]struct{})
	completed := make([]ActivityRecord, 0, len(records))
	for _, rec := range records {
		if rec.EndedAt == nil {
			continue
		}
		if since != nil && rec.EndedAt.Before(*since) {
			continue
		}
		completed = append(completed, rec)
		stats.TotalDurationSeconds += rec.DurationSeconds
		stats.TotalActivityCount++
		kinds[NormalizeKind(rec.Name)] = struct{}{}
	}
	stats.DistinctActivityKinds = len(kinds)

	sortByEndedDesc(completed)
	for i := 0; i < len(completed) && i < RecentDatesWindow; i++ {
		stats.RecentActivityDates = append(stats.RecentActivityDates, CalendarDate(*completed[i].EndedAt))
	}
	return stats
}

func sortByEndedDesc(records []ActivityRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].EndedAt.Equal(*records[j].EndedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].EndedAt.After(*records[j].EndedAt)
	})
}
