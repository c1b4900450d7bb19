// Package outbox delivers events recorded in the outbox table to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// SchemaRegistrar resolves schema IDs for the wire-format prefix.
type SchemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Dispatcher drains the outbox table and delivers events to Kafka using Schema Registry metadata.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         SchemaRegistrar
	dlq              deadLetters
	pollInterval     time.Duration
	batchSize        int
	logger           *zap.Logger
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry SchemaRegistrar, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	d := &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		dlq:              deadLetters{pool: pool},
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		logger:           zap.NewNop(),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the polling loop until ctx is cancelled. Call it in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.fetchAndClaim(ctx)
	if err != nil || len(messages) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	delivered, failed, deliverErr := d.deliver(ctx, messages)
	if len(failed) > 0 {
		d.logger.Warn("outbox delivery failed, parking in dlq",
			zap.Int("failed", len(failed)),
			zap.Int("delivered", len(delivered)),
			zap.Error(deliverErr))
		if err := d.dlq.park(ctx, failed, deliverErr); err != nil {
			return err
		}
		countDispatch(failed, resultDeadLettered)
	}
	countDispatch(delivered, resultDelivered)
	return d.markPublished(ctx, messages)
}

const claimBatch = `SELECT event_id, user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
FROM outbox
WHERE published_at IS NULL
ORDER BY event_id
LIMIT $1
FOR UPDATE SKIP LOCKED`

// fetchAndClaim locks the oldest unpublished rows and stamps claimed_at so a
// concurrent dispatcher skips them.
func (d *Dispatcher) fetchAndClaim(ctx context.Context) ([]Message, error) {
	var messages []Message
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, claimBatch, d.batchSize)
		if err != nil {
			return err
		}
		messages, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
		if err != nil || len(messages) == 0 {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	return messages, nil
}

// deliver publishes messages grouped by topic, preserving first-seen topic
// order. A failing topic or an unframeable message only fails its own rows.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) (delivered, failed []Message, err error) {
	type topicBatch struct {
		rows    []Message
		records []kafka.Message
	}
	batches := make(map[string]*topicBatch)
	var order []string

	for _, msg := range messages {
		record, frameErr := d.frame(ctx, msg)
		if frameErr != nil {
			failed = append(failed, msg)
			err = errors.Join(err, frameErr)
			continue
		}
		batch, ok := batches[msg.Topic]
		if !ok {
			batch = &topicBatch{}
			batches[msg.Topic] = batch
			order = append(order, msg.Topic)
		}
		batch.rows = append(batch.rows, msg)
		batch.records = append(batch.records, record)
	}

	for _, topic := range order {
		batch := batches[topic]
		if writeErr := d.producer.WriteMessages(ctx, topic, batch.records...); writeErr != nil {
			failed = append(failed, batch.rows...)
			err = errors.Join(err, fmt.Errorf("write %s: %w", topic, writeErr))
			continue
		}
		delivered = append(delivered, batch.rows...)
	}
	return delivered, failed, err
}

// frame builds the Kafka record for an outbox row: key is the partition key,
// value is the schema-framed payload, headers carry routing metadata.
func (d *Dispatcher) frame(ctx context.Context, msg Message) (kafka.Message, error) {
	meta, ok := schemaCatalog[msg.EventType]
	if !ok {
		return kafka.Message{}, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}
	schemaID, err := d.schemaID(ctx, msg.SchemaSubject, meta.Schema)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: encodeWireFormat(schemaID, msg.Payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "user_id", Value: []byte(msg.UserID)},
			{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
		},
	}, nil
}

func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	cacheKey := subject + "::" + schema
	if cached, ok := d.schemaIDCache.Load(cacheKey); ok {
		return cached.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

func (d *Dispatcher) markPublished(ctx context.Context, messages []Message) error {
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages))
	return err
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, len(messages))
	for i, msg := range messages {
		ids[i] = msg.EventID
	}
	return ids
}

// Message is a claimed outbox row. Field order matches claimBatch.
type Message struct {
	EventID       int64
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// encodeWireFormat applies Confluent framing: magic byte 0 then the big-endian schema ID.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
