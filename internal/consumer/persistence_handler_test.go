package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExec struct {
	sql  string
	args []any
	err  error
}

func (r *recordingExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

func TestPersistenceHandlerBindsRecordCoordinates(t *testing.T) {
	db := &recordingExec{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := Message{
		EventType: "progress.level_up",
		UserID:    "user-7",
		SchemaID:  3,
		Topic:     "progress_events",
		Partition: 2,
		Offset:    41,
		Payload:   []byte(`{"new_level":3}`),
		Timestamp: at,
	}

	require.NoError(t, NewPersistenceHandler(db).Handle(context.Background(), msg))
	require.Contains(t, db.sql, "ON CONFLICT (topic, partition, record_offset) DO NOTHING")
	require.Equal(t, []any{"progress.level_up", "user-7", 3, "", "progress_events", 2, int64(41), msg.Payload, at}, db.args)
}

func TestPersistenceHandlerWrapsStoreErrors(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewPersistenceHandler(&recordingExec{err: cause}).Handle(context.Background(), Message{Topic: "achievement_events", Offset: 9})
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "achievement_events@0/9")
}
