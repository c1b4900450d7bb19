package outbox

import platformevents "github.com/Varn22/pixel-time-tracker/pkg/platform/events"

const activityCompletedSchema = `{
  "type": "object",
  "title": "ActivityCompleted",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "name": {"type": "string"},
    "category": {"type": "string"},
    "duration_seconds": {"type": "integer", "minimum": 0},
    "xp_earned": {"type": "integer", "minimum": 0},
    "experience": {"type": "integer", "minimum": 0},
    "level": {"type": "integer", "minimum": 1},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "duration_seconds", "xp_earned", "experience", "level", "completed_at"],
  "additionalProperties": false
}`

const levelUpSchema = `{
  "type": "object",
  "title": "LevelUp",
  "properties": {
    "user_id": {"type": "string"},
    "telegram_id": {"type": "integer"},
    "notifications": {"type": "boolean"},
    "previous_level": {"type": "integer", "minimum": 1},
    "new_level": {"type": "integer", "minimum": 2},
    "experience": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "telegram_id", "notifications", "previous_level", "new_level", "experience", "occurred_at"],
  "additionalProperties": false
}`

const achievementUnlockedSchema = `{
  "type": "object",
  "title": "AchievementUnlocked",
  "properties": {
    "user_id": {"type": "string"},
    "telegram_id": {"type": "integer"},
    "notifications": {"type": "boolean"},
    "code": {"type": "string"},
    "title": {"type": "string"},
    "description": {"type": "string"},
    "icon": {"type": "string"},
    "unlocked_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "telegram_id", "notifications", "code", "title", "description", "unlocked_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	platformevents.TypeActivityCompleted:   {Schema: activityCompletedSchema},
	platformevents.TypeLevelUp:             {Schema: levelUpSchema},
	platformevents.TypeAchievementUnlocked: {Schema: achievementUnlockedSchema},
}
