package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	platformevents "github.com/Varn22/pixel-time-tracker/pkg/platform/events"
)

// Event is a state change destined for the outbox. It is written in the same transaction as
// the change it describes.
type Event struct {
	Type        string
	AggregateID string
	UserID      string
	// DedupeKey makes the outbox insert idempotent.
	DedupeKey string
	Payload   any
}

func recipientOf(u User) platformevents.Recipient {
	return platformevents.Recipient{TelegramID: u.TelegramID, Notifications: u.Settings.Notifications}
}

func levelUpEvent(u User, lu LevelUpEvent, experience int, at time.Time) Event {
	return Event{
		Type:        platformevents.TypeLevelUp,
		AggregateID: u.ID,
		UserID:      u.ID,
		DedupeKey:   fmt.Sprintf("%s:%s:%s", u.ID, platformevents.TypeLevelUp, strconv.Itoa(lu.NewLevel)),
		Payload: platformevents.LevelUp{
			Recipient:     recipientOf(u),
			UserID:        u.ID,
			PreviousLevel: lu.PreviousLevel,
			NewLevel:      lu.NewLevel,
			Experience:    experience,
			OccurredAt:    at,
		},
	}
}

func achievementEvent(u User, def AchievementDefinition, at time.Time) Event {
	return Event{
		Type:        platformevents.TypeAchievementUnlocked,
		AggregateID: u.ID,
		UserID:      u.ID,
		DedupeKey:   fmt.Sprintf("%s:%s:%s", u.ID, platformevents.TypeAchievementUnlocked, def.Code),
		Payload: platformevents.AchievementUnlocked{
			Recipient:   recipientOf(u),
			UserID:      u.ID,
			Code:        def.Code,
			Title:       def.Title,
			Description: def.Description,
			Icon:        def.Icon,
			UnlockedAt:  at,
		},
	}
}

func completedEvent(u User, rec *ActivityRecord, durationSeconds int64, xp int, progress UserProgress, at time.Time) Event {
	payload := platformevents.ActivityCompleted{
		UserID:          u.ID,
		DurationSeconds: durationSeconds,
		XPEarned:        xp,
		Experience:      progress.Experience,
		Level:           progress.Level,
		CompletedAt:     at,
	}
	aggregate := u.ID
	dedupe := fmt.Sprintf("%s:%s:%s", u.ID, platformevents.TypeActivityCompleted, uuid.NewString())
	if rec != nil {
		payload.ActivityID = rec.ID
		payload.Name = rec.Name
		payload.Category = rec.Category
		aggregate = rec.ID
		dedupe = fmt.Sprintf("%s:%s", rec.ID, platformevents.TypeActivityCompleted)
	}
	return Event{
		Type:        platformevents.TypeActivityCompleted,
		AggregateID: aggregate,
		UserID:      u.ID,
		DedupeKey:   dedupe,
		Payload:     payload,
	}
}
