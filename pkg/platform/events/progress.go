// Package events defines the payloads published by the tracker to Kafka.
package events

import "time"

// Event type names, used as the event_type header and outbox discriminator.
const (
	TypeActivityCompleted   = "activity.completed"
	TypeLevelUp             = "progress.level_up"
	TypeAchievementUnlocked = "achievement.unlocked"
)

// Recipient carries what a notification consumer needs to reach the user without a lookup.
type Recipient struct {
	TelegramID    int64 `json:"telegram_id"`
	Notifications bool  `json:"notifications"`
}

// ActivityCompleted is emitted when an activity finishes and its experience has been applied.
type ActivityCompleted struct {
	ActivityID      string    `json:"activity_id,omitempty"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name,omitempty"`
	Category        string    `json:"category,omitempty"`
	DurationSeconds int64     `json:"duration_seconds"`
	XPEarned        int       `json:"xp_earned"`
	Experience      int       `json:"experience"`
	Level           int       `json:"level"`
	CompletedAt     time.Time `json:"completed_at"`
}

// LevelUp is emitted when accrual crosses one or more level boundaries.
type LevelUp struct {
	Recipient
	UserID        string    `json:"user_id"`
	PreviousLevel int       `json:"previous_level"`
	NewLevel      int       `json:"new_level"`
	Experience    int       `json:"experience"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AchievementUnlocked is emitted once per (user, achievement).
type AchievementUnlocked struct {
	Recipient
	UserID      string    `json:"user_id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}
