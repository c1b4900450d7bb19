// Package consumer reads tracker events from Kafka and hands them to handlers.
package consumer

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Chain runs handlers in order and stops at the first error, so later handlers only see
// messages the earlier ones accepted.
func Chain(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, msg Message) error {
		for _, h := range handlers {
			if err := h.Handle(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// Message is the decoded representation of a Kafka record emitted by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFetchBackoff sets the pause after a failed fetch.
func WithFetchBackoff(d time.Duration) Option {
	return func(p *Processor) {
		p.fetchBackoff = d
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader       Reader
	handler      Handler
	logger       *zap.Logger
	fetchBackoff time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:       reader,
		handler:      handler,
		logger:       zap.NewNop(),
		fetchBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes until ctx is cancelled. A record's offset is committed once the
// handler accepts it; a failed handler leaves the offset uncommitted so the
// record is redelivered after a rebalance or restart. Malformed records are
// committed straight away.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := p.reader.FetchMessage(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			p.logger.Warn("fetch failed", zap.Error(err), zap.Duration("backoff", p.fetchBackoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.fetchBackoff):
			}
			continue
		}

		p.process(ctx, record)
	}
}

func (p *Processor) process(ctx context.Context, record kafka.Message) {
	log := p.logger.With(
		zap.String("topic", record.Topic),
		zap.Int("partition", record.Partition),
		zap.Int64("offset", record.Offset))

	msg, err := decodeMessage(record)
	if err != nil {
		log.Warn("dropping malformed record", zap.Error(err))
		recordDecodeError(record.Topic)
		p.commit(ctx, log, record)
		return
	}

	if err := p.handler.Handle(ctx, msg); err != nil {
		log.Error("handler failed",
			zap.String("event_type", msg.EventType),
			zap.String("user_id", msg.UserID),
			zap.Error(err))
		recordHandlerError(msg)
		return
	}

	if p.commit(ctx, log, record) {
		recordProcessed(msg)
	}
}

func (p *Processor) commit(ctx context.Context, log *zap.Logger, record kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		log.Error("commit failed", zap.Error(err))
		return false
	}
	return true
}

// decodeMessage unwraps the schema-framed value (magic byte 0, 4-byte schema
// ID, JSON body) and lifts the routing headers.
func decodeMessage(record kafka.Message) (Message, error) {
	if len(record.Value) < 5 {
		return Message{}, fmt.Errorf("value too short for schema frame: %d bytes", len(record.Value))
	}
	if magic := record.Value[0]; magic != 0 {
		return Message{}, fmt.Errorf("unknown magic byte %d", magic)
	}

	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType := headers["event_type"]
	if eventType == "" {
		return Message{}, errors.New("missing event_type header")
	}

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		EventType:     eventType,
		UserID:        headers["user_id"],
		SchemaSubject: headers["schema_subject"],
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:5])),
		Payload:       json.RawMessage(bytes.Clone(record.Value[5:])),
	}, nil
}
