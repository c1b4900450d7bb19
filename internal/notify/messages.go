package notify

import (
	"fmt"
	"strings"
)

// LevelUpText is the message sent when a user reaches a new level.
func LevelUpText(level int) string {
	return fmt.Sprintf("🎉 Congratulations! You reached level %d!", level)
}

// AchievementText is the message sent when an achievement unlocks.
func AchievementText(title, description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return fmt.Sprintf("🏆 Achievement unlocked: %s.", title)
	}
	return fmt.Sprintf("🏆 Achievement unlocked: %s. %s", title, description)
}
