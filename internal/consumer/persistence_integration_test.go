//go:build integration

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformevents "github.com/Varn22/pixel-time-tracker/pkg/platform/events"

	"github.com/Varn22/pixel-time-tracker/internal/testsupport"
)

func TestPersistenceHandlerIgnoresRedelivery(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)
	handler := NewPersistenceHandler(pool)

	userID := uuid.NewString()
	base := Message{
		EventType:     platformevents.TypeAchievementUnlocked,
		UserID:        userID,
		SchemaID:      42,
		SchemaSubject: "achievement_events-value",
		Topic:         "achievement_events",
		Payload:       []byte(`{"code":"time_master"}`),
		Timestamp:     time.Now().UTC(),
	}
	next := base
	next.Offset = 1
	next.Payload = []byte(`{"code":"marathon_runner"}`)

	for _, msg := range []Message{base, base, next} {
		require.NoError(t, handler.Handle(ctx, msg))
	}

	rows, err := pool.Query(ctx, `SELECT record_offset, payload->>'code' FROM event_log WHERE user_id = $1 ORDER BY record_offset`, userID)
	require.NoError(t, err)
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var (
			offset int64
			code   string
		)
		require.NoError(t, rows.Scan(&offset, &code))
		codes = append(codes, code)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"time_master", "marathon_runner"}, codes)
}
