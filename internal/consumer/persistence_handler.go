package consumer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const appendEventLog = `INSERT INTO event_log (event_type, user_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (topic, partition, record_offset) DO NOTHING`

// Execer is the slice of pgx used by the event log.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PersistenceHandler appends consumed events to the event_log audit table.
// A redelivered record maps to the same (topic, partition, offset) key and is
// ignored.
type PersistenceHandler struct {
	db Execer
}

func NewPersistenceHandler(db Execer) *PersistenceHandler {
	return &PersistenceHandler{db: db}
}

func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.db.Exec(ctx, appendEventLog,
		msg.EventType, msg.UserID, msg.SchemaID, msg.SchemaSubject,
		msg.Topic, msg.Partition, msg.Offset, msg.Payload, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append %s@%d/%d to event log: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}
	return nil
}
