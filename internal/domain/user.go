package domain

import (
	"strings"
	"time"
)

// Themes supported by the web client.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

const (
	defaultDailyGoalMinutes     = 120
	defaultBreakReminderMinutes = 60
)

// Settings are the user-editable preferences.
type Settings struct {
	Theme                string
	Notifications        bool
	DailyGoalMinutes     int
	BreakReminderMinutes int
}

// DefaultSettings returns the settings assigned at registration.
func DefaultSettings() Settings {
	return Settings{
		Theme:                ThemeLight,
		Notifications:        true,
		DailyGoalMinutes:     defaultDailyGoalMinutes,
		BreakReminderMinutes: defaultBreakReminderMinutes,
	}
}

// Validate checks the settings ranges.
func (s Settings) Validate() error {
	switch s.Theme {
	case ThemeLight, ThemeDark:
	default:
		return &ValidationError{Field: "theme", Reason: "must be light or dark"}
	}
	if s.DailyGoalMinutes <= 0 {
		return &ValidationError{Field: "daily_goal_minutes", Reason: "must be positive"}
	}
	if s.BreakReminderMinutes <= 0 {
		return &ValidationError{Field: "break_reminder_minutes", Reason: "must be positive"}
	}
	return nil
}

// User is a tracker account keyed by its Telegram identity.
type User struct {
	ID         string
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Progress   UserProgress
	Settings   Settings
	CreatedAt  time.Time
}

// DisplayName prefers the first name and falls back to the username.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	return u.Username
}

// RegisterUserInput captures the identity presented by a Telegram client.
type RegisterUserInput struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	Theme                *string
	Notifications        *bool
	DailyGoalMinutes     *int
	BreakReminderMinutes *int
}

// Apply returns s with the patch applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.Theme != nil {
		s.Theme = strings.ToLower(strings.TrimSpace(*p.Theme))
	}
	if p.Notifications != nil {
		s.Notifications = *p.Notifications
	}
	if p.DailyGoalMinutes != nil {
		s.DailyGoalMinutes = *p.DailyGoalMinutes
	}
	if p.BreakReminderMinutes != nil {
		s.BreakReminderMinutes = *p.BreakReminderMinutes
	}
	return s
}
