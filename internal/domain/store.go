package domain

import (
	"context"
	"time"
)

// UserRepository persists user profiles.
type UserRepository interface {
	// CreateUser inserts a user; it returns the existing row when the Telegram ID is taken.
	CreateUser(ctx context.Context, user User) (*User, bool, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	UpdateSettings(ctx context.Context, userID string, settings Settings) error
}

// ActivityRepository answers read queries over activities and unlocks.
type ActivityRepository interface {
	InProgressActivity(ctx context.Context, userID string) (*ActivityRecord, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]ActivityRecord, *Cursor, error)
	CompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]ActivityRecord, error)
	TopActivities(ctx context.Context, userID string, limit int) ([]NamedTotal, error)
	ActivityStats(ctx context.Context, userID string, since *time.Time) (ActivityStats, error)
	ListUnlocks(ctx context.Context, userID string) ([]AchievementUnlock, error)
}

// ProgressStore runs a function while holding the user's write lock. The function's writes
// commit together or not at all.
type ProgressStore interface {
	WithUserTx(ctx context.Context, userID string, fn func(tx ProgressTx) error) error
}

// ProgressTx is the view of a single user's state inside WithUserTx.
type ProgressTx interface {
	User() User
	ActivityStats(ctx context.Context) (ActivityStats, error)
	UnlockedCodes(ctx context.Context) (map[string]struct{}, error)
	InProgressActivity(ctx context.Context) (*ActivityRecord, error)
	InsertActivity(ctx context.Context, record ActivityRecord) error
	FinishActivity(ctx context.Context, activityID string, endedAt time.Time, durationSeconds int64) error
	SaveProgress(ctx context.Context, progress UserProgress) error
	// InsertUnlock reports false when the achievement was already unlocked.
	InsertUnlock(ctx context.Context, unlock AchievementUnlock) (bool, error)
	RecordEvent(ctx context.Context, event Event) error
}

// Repository is the full persistence surface used by Service.
type Repository interface {
	UserRepository
	ActivityRepository
	ProgressStore
}

// StatsCache stores computed stats summaries per user.
type StatsCache interface {
	GetStats(ctx context.Context, userID string, days int, dest *StatsSummary) (bool, error)
	SetStats(ctx context.Context, userID string, days int, summary StatsSummary) error
	Invalidate(ctx context.Context, userID string) error
}
