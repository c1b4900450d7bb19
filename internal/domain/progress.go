package domain

import "math"

// DefaultXPPerLevel is the experience required to advance one level.
const DefaultXPPerLevel = 100

// SecondsPerXP converts tracked time into experience: one point per completed minute.
const SecondsPerXP = 60

// UserProgress is the gamified state of a user.
type UserProgress struct {
	Experience int
	Level      int
}

// NewUserProgress returns the progress of a freshly registered user.
func NewUserProgress() UserProgress {
	return UserProgress{Experience: 0, Level: 1}
}

// LevelUpEvent is produced when accrual crosses a level boundary.
type LevelUpEvent struct {
	PreviousLevel int
	NewLevel      int
}

// ComputeLevel maps experience to a level. Negative experience is treated as zero.
func ComputeLevel(experience, xpPerLevel int) int {
	if xpPerLevel <= 0 {
		xpPerLevel = DefaultXPPerLevel
	}
	if experience < 0 {
		experience = 0
	}
	return 1 + experience/xpPerLevel
}

// XPForDuration truncates to whole minutes; partial minutes never round up.
func XPForDuration(seconds int64) int {
	if seconds <= 0 {
		return 0
	}
	return int(seconds / SecondsPerXP)
}

// MaxDurationSeconds bounds a single completion (about 68 years). It keeps
// start-time arithmetic inside time.Duration and per-call XP far from int64.
const MaxDurationSeconds int64 = math.MaxInt32

// ValidateDuration rejects negative durations and durations above
// MaxDurationSeconds.
func ValidateDuration(seconds int64) error {
	if seconds < 0 || seconds > MaxDurationSeconds {
		return ErrInvalidDuration
	}
	return nil
}

// DurationFromSeconds validates a duration supplied as a float, for callers decoding JSON or
// form input, and truncates it to whole seconds.
func DurationFromSeconds(seconds float64) (int64, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 || seconds > float64(MaxDurationSeconds) {
		return 0, ErrInvalidDuration
	}
	return int64(seconds), nil
}

// Rules holds the tunable parameters of experience accrual.
type Rules struct {
	XPPerLevel int
}

// DefaultRules returns the production accrual parameters.
func DefaultRules() Rules {
	return Rules{XPPerLevel: DefaultXPPerLevel}
}

func (r Rules) xpPerLevel() int {
	if r.XPPerLevel <= 0 {
		return DefaultXPPerLevel
	}
	return r.XPPerLevel
}

// Level computes the level for the given experience under these rules.
func (r Rules) Level(experience int) int {
	return ComputeLevel(experience, r.xpPerLevel())
}

// Accrue adds the experience earned for deltaSeconds of tracked time. A LevelUpEvent is returned
// only when the level strictly increases. Experience saturates at math.MaxInt64 and never
// decreases.
func (r Rules) Accrue(progress UserProgress, deltaSeconds int64) (UserProgress, *LevelUpEvent) {
	previous := r.Level(progress.Experience)
	experience := progress.Experience
	if earned := XPForDuration(deltaSeconds); earned > math.MaxInt-experience {
		experience = math.MaxInt
	} else {
		experience += earned
	}
	next := UserProgress{Experience: experience}
	next.Level = r.Level(next.Experience)
	if next.Level > previous {
		return next, &LevelUpEvent{PreviousLevel: previous, NewLevel: next.Level}
	}
	return next, nil
}

// LevelProgress describes how far a user is into the current level.
type LevelProgress struct {
	Level          int     `json:"level"`
	Experience     int     `json:"experience"`
	XPIntoLevel    int     `json:"xp_into_level"`
	XPToNextLevel  int     `json:"xp_to_next_level"`
	XPPerLevel     int     `json:"xp_per_level"`
	PercentToLevel float64 `json:"percent_to_next_level"`
}

// Progress reports level progress for the given experience.
func (r Rules) Progress(experience int) LevelProgress {
	per := r.xpPerLevel()
	if experience < 0 {
		experience = 0
	}
	into := experience % per
	return LevelProgress{
		Level:          r.Level(experience),
		Experience:     experience,
		XPIntoLevel:    into,
		XPToNextLevel:  per - into,
		XPPerLevel:     per,
		PercentToLevel: math.Round(float64(into)*10000/float64(per)) / 100,
	}
}
