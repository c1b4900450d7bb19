package api

import (
	"errors"
	"strings"
	"time"

	"github.com/Varn22/pixel-time-tracker/internal/domain"
)

// RegisterUserRequest is the payload for POST /v1/users.
type RegisterUserRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

// UpdateSettingsRequest is the payload for PUT /v1/users/{id}/settings. Omitted fields are kept.
type UpdateSettingsRequest struct {
	Theme                *string `json:"theme"`
	Notifications        *bool   `json:"notifications"`
	DailyGoalMinutes     *int    `json:"daily_goal_minutes"`
	BreakReminderMinutes *int    `json:"break_reminder_minutes"`
}

// StartActivityRequest is the payload for POST /v1/activities.
type StartActivityRequest struct {
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Category  string     `json:"category"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Validate ensures request correctness.
func (r StartActivityRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

// StopActivityRequest is the payload for POST /v1/activities/stop.
type StopActivityRequest struct {
	UserID string `json:"user_id"`
}

// LogActivityRequest is the payload for POST /v1/activities/log. Exactly one of
// duration_seconds and duration_minutes must be set.
type LogActivityRequest struct {
	UserID          string     `json:"user_id"`
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	DurationMinutes *float64   `json:"duration_minutes,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// Seconds validates the request and returns the duration in whole seconds.
func (r LogActivityRequest) Seconds() (int64, error) {
	if strings.TrimSpace(r.UserID) == "" {
		return 0, errors.New("user_id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return 0, errors.New("name is required")
	}
	switch {
	case r.DurationSeconds != nil && r.DurationMinutes != nil:
		return 0, errors.New("set duration_seconds or duration_minutes, not both")
	case r.DurationSeconds != nil:
		return domain.DurationFromSeconds(*r.DurationSeconds)
	case r.DurationMinutes != nil:
		return domain.DurationFromSeconds(*r.DurationMinutes * 60)
	default:
		return 0, errors.New("duration_seconds or duration_minutes is required")
	}
}

// CompletionRequest is the payload for POST /v1/completions.
type CompletionRequest struct {
	UserID          string  `json:"user_id"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// SettingsView exposes user settings.
type SettingsView struct {
	Theme                string `json:"theme"`
	Notifications        bool   `json:"notifications"`
	DailyGoalMinutes     int    `json:"daily_goal_minutes"`
	BreakReminderMinutes int    `json:"break_reminder_minutes"`
}

// UserView exposes a user with level progress.
type UserView struct {
	UserID      string               `json:"user_id"`
	TelegramID  int64                `json:"telegram_id"`
	Username    string               `json:"username,omitempty"`
	FirstName   string               `json:"first_name,omitempty"`
	LastName    string               `json:"last_name,omitempty"`
	DisplayName string               `json:"display_name"`
	Progress    domain.LevelProgress `json:"progress"`
	Settings    SettingsView         `json:"settings"`
	CreatedAt   time.Time            `json:"created_at"`
}

// ActivityView exposes a stored activity.
type ActivityView struct {
	ActivityID      string     `json:"activity_id"`
	UserID          string     `json:"user_id"`
	Name            string     `json:"name"`
	Category        string     `json:"category,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	InProgress      bool       `json:"in_progress"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// AchievementView exposes a catalog entry and, in listings, its unlock state.
type AchievementView struct {
	Code        string     `json:"code"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Icon        string     `json:"icon,omitempty"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

// AchievementsResponse lists the catalog for a user.
type AchievementsResponse struct {
	Items         []AchievementView `json:"items"`
	UnlockedCount int               `json:"unlocked_count"`
}

// CompletionView reports the effects of a completion.
type CompletionView struct {
	XPEarned             int               `json:"xp_earned"`
	Experience           int               `json:"experience"`
	Level                int               `json:"level"`
	NewLevel             *int              `json:"new_level,omitempty"`
	UnlockedAchievements []AchievementView `json:"unlocked_achievements"`
}

// CompletedActivityResponse is returned by stop, log and completion requests.
type CompletedActivityResponse struct {
	Activity   *ActivityView  `json:"activity,omitempty"`
	Completion CompletionView `json:"completion"`
}

func toUserView(u domain.User, rules domain.Rules) UserView {
	return UserView{
		UserID:      u.ID,
		TelegramID:  u.TelegramID,
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName(),
		Progress:    rules.Progress(u.Progress.Experience),
		Settings: SettingsView{
			Theme:                u.Settings.Theme,
			Notifications:        u.Settings.Notifications,
			DailyGoalMinutes:     u.Settings.DailyGoalMinutes,
			BreakReminderMinutes: u.Settings.BreakReminderMinutes,
		},
		CreatedAt: u.CreatedAt,
	}
}

func toActivityView(rec domain.ActivityRecord) ActivityView {
	return ActivityView{
		ActivityID:      rec.ID,
		UserID:          rec.UserID,
		Name:            rec.Name,
		Category:        rec.Category,
		StartedAt:       rec.StartedAt,
		EndedAt:         rec.EndedAt,
		DurationSeconds: rec.DurationSeconds,
		InProgress:      rec.InProgress(),
	}
}

func toAchievementView(def domain.AchievementDefinition) AchievementView {
	return AchievementView{
		Code:        def.Code,
		Title:       def.Title,
		Description: def.Description,
		Icon:        def.Icon,
	}
}

func toCompletionView(result domain.CompletionResult) CompletionView {
	view := CompletionView{
		XPEarned:             result.XPEarned,
		Experience:           result.Experience,
		Level:                result.Level,
		NewLevel:             result.NewLevel,
		UnlockedAchievements: make([]AchievementView, 0, len(result.UnlockedAchievements)),
	}
	for _, def := range result.UnlockedAchievements {
		v := toAchievementView(def)
		v.Unlocked = true
		view.UnlockedAchievements = append(view.UnlockedAchievements, v)
	}
	return view
}
