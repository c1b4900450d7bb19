package domain

import "time"

// Stable achievement codes. They are persisted and must never be renamed.
const (
	AchievementTimeMaster      = "time_master"
	AchievementActivityKing    = "activity_king"
	AchievementDiversityExpert = "diversity_expert"
	AchievementRegularTracker  = "regular_tracker"
	AchievementMarathonRunner  = "marathon_runner"
)

// AchievementDefinition is an entry of the static catalog.
type AchievementDefinition struct {
	Code        string
	Title       string
	Description string
	Icon        string
	Predicate   func(ActivityStats) bool
}

// AchievementUnlock records that a user earned an achievement.
type AchievementUnlock struct {
	UserID     string
	Code       string
	UnlockedAt time.Time
}

// AchievementStatus pairs a catalog entry with the user's unlock, if any.
type AchievementStatus struct {
	Definition AchievementDefinition
	Unlocked   bool
	UnlockedAt *time.Time
}

// Thresholds parameterises the default catalog.
type Thresholds struct {
	TimeMasterSeconds     int64
	ActivityKingCount     int
	DiversityExpertKinds  int
	RegularTrackerDays    int
	MarathonRunnerSeconds int64
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TimeMasterSeconds:     3600,
		ActivityKingCount:     10,
		DiversityExpertKinds:  5,
		RegularTrackerDays:    5,
		MarathonRunnerSeconds: 7200,
	}
}

// Catalog is an ordered, immutable list of achievement definitions.
type Catalog struct {
	definitions []AchievementDefinition
	byCode      map[string]AchievementDefinition
}

// NewCatalog builds a catalog preserving declaration order.
func NewCatalog(definitions ...AchievementDefinition) *Catalog {
	c := &Catalog{
		definitions: make([]AchievementDefinition, len(definitions)),
		byCode:      make(map[string]AchievementDefinition, len(definitions)),
	}
	copy(c.definitions, definitions)
	for _, def := range definitions {
		c.byCode[def.Code] = def
	}
	return c
}

// DefaultCatalog returns the built-in achievements for the given thresholds.
func DefaultCatalog(t Thresholds) *Catalog {
	return NewCatalog(
		AchievementDefinition{
			Code:        AchievementTimeMaster,
			Title:       "Time Master",
			Description: "Tracked a total of one hour.",
			Icon:        "⏱",
			Predicate: func(s ActivityStats) bool {
				return s.TotalDurationSeconds >= t.TimeMasterSeconds
			},
		},
		AchievementDefinition{
			Code:        AchievementActivityKing,
			Title:       "Activity King",
			Description: "Completed ten activities.",
			Icon:        "👑",
			Predicate: func(s ActivityStats) bool {
				return s.TotalActivityCount >= t.ActivityKingCount
			},
		},
		AchievementDefinition{
			Code:        AchievementDiversityExpert,
			Title:       "Diversity Expert",
			Description: "Tracked five different kinds of activity.",
			Icon:        "🌈",
			Predicate: func(s ActivityStats) bool {
				return s.DistinctActivityKinds >= t.DiversityExpertKinds
			},
		},
		AchievementDefinition{
			Code:        AchievementRegularTracker,
			Title:       "Regular Tracker",
			Description: "Your last five activities fell on five different days.",
			Icon:        "📅",
			Predicate: func(s ActivityStats) bool {
				return spansDistinctDates(s.RecentActivityDates, t.RegularTrackerDays)
			},
		},
		AchievementDefinition{
			Code:        AchievementMarathonRunner,
			Title:       "Marathon Runner",
			Description: "Tracked a total of two hours.",
			Icon:        "🏃",
			Predicate: func(s ActivityStats) bool {
				return s.TotalDurationSeconds >= t.MarathonRunnerSeconds
			},
		},
	)
}

// Definitions returns the catalog in declaration order.
func (c *Catalog) Definitions() []AchievementDefinition {
	out := make([]AchievementDefinition, len(c.definitions))
	copy(out, c.definitions)
	return out
}

// Lookup returns the definition for code.
func (c *Catalog) Lookup(code string) (AchievementDefinition, bool) {
	def, ok := c.byCode[code]
	return def, ok
}

// Evaluate returns, in catalog order, the definitions that are not in unlocked and whose
// predicate holds for stats. It has no side effects.
func (c *Catalog) Evaluate(unlocked map[string]struct{}, stats ActivityStats) []AchievementDefinition {
	var fresh []AchievementDefinition
	for _, def := range c.definitions {
		if _, done := unlocked[def.Code]; done {
			continue
		}
		if def.Predicate != nil && def.Predicate(stats) {
			fresh = append(fresh, def)
		}
	}
	return fresh
}

// Statuses merges the catalog with a user's unlocks.
func (c *Catalog) Statuses(unlocks []AchievementUnlock) []AchievementStatus {
	at := make(map[string]time.Time, len(unlocks))
	for _, u := range unlocks {
		at[u.Code] = u.UnlockedAt
	}
	out := make([]AchievementStatus, 0, len(c.definitions))
	for _, def := range c.definitions {
		status := AchievementStatus{Definition: def}
		if ts, ok := at[def.Code]; ok {
			ts := ts
			status.Unlocked = true
			status.UnlockedAt = &ts
		}
		out = append(out, status)
	}
	return out
}

// spansDistinctDates requires at least n recent dates covering at least n calendar days.
func spansDistinctDates(dates []time.Time, n int) bool {
	if n <= 0 {
		return true
	}
	if len(dates) < n {
		return false
	}
	seen := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		seen[CalendarDate(d)] = struct{}{}
	}
	return len(seen) >= n
}
