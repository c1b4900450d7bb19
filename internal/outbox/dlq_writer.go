package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertDLQ = `INSERT INTO outbox_dlq (user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`

// deadLetters parks undeliverable outbox rows in outbox_dlq.
type deadLetters struct {
	pool *pgxpool.Pool
}

// park writes every message in one batch so a partially parked batch never
// gets marked published.
func (d deadLetters) park(ctx context.Context, messages []Message, cause error) error {
	batch := &pgx.Batch{}
	for _, msg := range messages {
		reason := fmt.Sprintf("publish to %s: %v", msg.Topic, cause)
		batch.Queue(insertDLQ,
			msg.UserID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason,
			msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
		)
	}
	return d.pool.SendBatch(ctx, batch).Close()
}
