package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaProducer keeps one kafka.Writer per topic, created on first use.
// Records are hashed on their key, so every event of a user lands on the same
// partition and keeps its order.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// ProducerOption tunes a KafkaProducer.
type ProducerOption func(*KafkaProducer)

// WithBatchTimeout caps how long a writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(p *KafkaProducer) {
		if d > 0 {
			p.batchTimeout = d
		}
	}
}

func NewKafkaProducer(brokers []string, logger *zap.Logger, opts ...ProducerOption) *KafkaProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &KafkaProducer{
		brokers:      brokers,
		batchTimeout: 20 * time.Millisecond,
		logger:       logger,
		writers:      make(map[string]*kafka.Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writer(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(p.brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Compression:            kafka.Snappy,
			BatchTimeout:           p.batchTimeout,
			AllowAutoTopicCreation: true,
			ErrorLogger:            kafka.LoggerFunc(p.logger.Sugar().With("topic", topic).Errorf),
		}
		p.writers[topic] = w
	}
	return w
}

// Close flushes and closes every writer.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
