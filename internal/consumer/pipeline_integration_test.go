//go:build integration

package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Varn22/pixel-time-tracker/internal/domain"
	"github.com/Varn22/pixel-time-tracker/internal/outbox"
	"github.com/Varn22/pixel-time-tracker/internal/persistence/postgres"
	"github.com/Varn22/pixel-time-tracker/internal/testsupport"
)

type syncNotifier struct {
	mu    sync.Mutex
	texts map[int64][]string
}

func (n *syncNotifier) Notify(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts[chatID] = append(n.texts[chatID], text)
	return nil
}

func (n *syncNotifier) sent(chatID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts[chatID]...)
}

func TestCompletionReachesTelegramThroughKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	pool, _ := testsupport.StartPostgres(ctx, t)
	topics := []string{"progress_events", "achievement_events"}
	brokers := testsupport.StartKafka(ctx, t, append(topics, "activity_events")...)
	logger := zaptest.NewLogger(t)

	repo := postgres.NewRepository(pool)
	engine := domain.NewEngine(repo, domain.DefaultRules(), nil)
	service := domain.NewService(repo, engine)

	user, _, err := service.RegisterUser(ctx, domain.RegisterUserInput{TelegramID: 4242, FirstName: "Ada"})
	require.NoError(t, err)
	_, result, err := service.LogActivity(ctx, user.ID, domain.LogActivityInput{Name: "Deep work", DurationSeconds: 6000})
	require.NoError(t, err)
	require.NotNil(t, result.NewLevel)

	producer := outbox.NewKafkaProducer(brokers, logger)
	defer producer.Close()
	dispatcher := outbox.NewDispatcher(pool, producer, outbox.NewStaticRegistry(), 50*time.Millisecond, 10,
		outbox.WithLogger(logger))
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go dispatcher.Start(runCtx)

	notifier := &syncNotifier{texts: make(map[int64][]string)}
	handler := Chain(NewPersistenceHandler(pool), NewNotificationHandler(notifier, time.Second, logger))
	for _, topic := range topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     "pipeline-integration",
			Topic:       topic,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     100 * time.Millisecond,
			StartOffset: kafka.FirstOffset,
		})
		t.Cleanup(func() { _ = reader.Close() })
		proc := NewProcessor(reader, handler, WithLogger(logger))
		go func() { _ = proc.Run(runCtx) }()
	}

	require.Eventually(t, func() bool {
		return len(notifier.sent(4242)) == 2
	}, 2*time.Minute, 200*time.Millisecond)

	require.ElementsMatch(t, []string{
		"🎉 Congratulations! You reached level 2!",
		"🏆 Achievement unlocked: Time Master. Tracked a total of one hour.",
	}, notifier.sent(4242))

	var logged int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM event_log WHERE user_id = $1`, user.ID).Scan(&logged))
	require.Equal(t, 2, logged)

	stop()
	dispatcher.Wait()
}
