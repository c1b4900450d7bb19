package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const maxBackoff = time.Hour

// DLQManager moves parked events back into the outbox. Entries whose requeue
// keeps failing are retried with exponential backoff and quarantined once
// maxRetries is reached.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// Run replays a batch every interval until ctx is cancelled.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		handled, err := m.RunOnce(ctx, batchSize)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			m.logger.Error("dlq replay failed", zap.Int("handled", handled), zap.Error(err))
		case handled > 0:
			m.logger.Info("dlq replay pass", zap.Int("handled", handled))
		}
		refreshDepth(ctx, m.pool)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

const dueEntries = `SELECT dlq_id, user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
FROM outbox_dlq
WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
ORDER BY created_at
LIMIT $1`

// RunOnce handles up to batchSize due entries and reports how many were
// requeued, rescheduled or quarantined without error.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := m.pool.Query(ctx, dueEntries, batchSize)
	if err != nil {
		return 0, err
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[dlqEntry])
	if err != nil {
		return 0, fmt.Errorf("load dlq entries: %w", err)
	}

	handled := 0
	var errs []error
	for _, entry := range entries {
		if err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error { return m.handleEntry(ctx, tx, entry) }); err != nil {
			errs = append(errs, fmt.Errorf("dlq entry %d: %w", entry.ID, err))
			continue
		}
		handled++
	}
	return handled, errors.Join(errs...)
}

// handleEntry locks the row first; an entry held by another manager is left
// alone for this pass.
func (m *DLQManager) handleEntry(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	var locked int64
	err := tx.QueryRow(ctx, `SELECT dlq_id FROM outbox_dlq WHERE dlq_id = $1 FOR UPDATE SKIP LOCKED`, entry.ID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	if entry.RetryCount >= m.maxRetries {
		if _, err := tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
			fmt.Sprintf("gave up after %d retries", entry.RetryCount), entry.ID); err != nil {
			return err
		}
		recordReplay(entry, replayQuarantined)
		m.logger.Warn("dlq entry quarantined",
			zap.Int64("dlq_id", entry.ID),
			zap.String("event_type", entry.EventType),
			zap.String("user_id", entry.UserID))
		return nil
	}

	if requeueErr := requeue(ctx, tx, entry); requeueErr != nil {
		if _, err := tx.Exec(ctx, `UPDATE outbox_dlq
SET retry_count = retry_count + 1, last_attempt_at = NOW(), next_retry_at = NOW() + $1::interval, reason = $2
WHERE dlq_id = $3`, m.backoffDelay(entry.RetryCount+1), requeueErr.Error(), entry.ID); err != nil {
			return err
		}
		recordReplay(entry, replayDeferred)
		return nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return err
	}
	recordReplay(entry, replayRequeued)
	return nil
}

// backoffDelay is baseDelay * 2^(attempt-1), capped at maxBackoff.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	if attempt > 20 {
		return maxBackoff
	}
	return min(m.baseDelay<<(attempt-1), maxBackoff)
}

// requeue inserts the event into the outbox under a savepoint so a failed
// insert leaves tx usable for the retry bookkeeping. The requeued row gets no
// dedupe key; the original key already belongs to the published row.
func requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return errors.New("missing schema_subject")
	}
	return pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error {
		_, err := sp.Exec(ctx, `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			entry.UserID, entry.AggregateType, entry.AggregateID, entry.EventType,
			entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload)
		return err
	})
}

// dlqEntry is an outbox_dlq row. Field order matches dueEntries.
type dlqEntry struct {
	ID            int64
	UserID        string
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}
