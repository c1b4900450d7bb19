package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMessageTexts(t *testing.T) {
	require.Equal(t, "🎉 Congratulations! You reached level 3!", LevelUpText(3))
	require.Equal(t,
		"🏆 Achievement unlocked: Time Master. Track at least one hour in total.",
		AchievementText("Time Master", "Track at least one hour in total."))
	require.Equal(t, "🏆 Achievement unlocked: Time Master.", AchievementText("Time Master", " "))
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []tgbotapi.MessageConfig
	err   error
	block chan struct{}
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, s.err
}

func TestTelegramNotifierSends(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifierWithSender(sender, WithLogger(zaptest.NewLogger(t)), WithRateLimit(0))

	require.NoError(t, n.Notify(context.Background(), 42, "hello"))
	require.Len(t, sender.sent, 1)
	require.Equal(t, int64(42), sender.sent[0].ChatID)
	require.Equal(t, "hello", sender.sent[0].Text)
}

func TestTelegramNotifierWrapsFailures(t *testing.T) {
	boom := errors.New("bot api unavailable")
	n := NewTelegramNotifierWithSender(&fakeSender{err: boom})

	err := n.Notify(context.Background(), 7, "hi")
	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	require.Equal(t, int64(7), delivery.ChatID)
	require.ErrorIs(t, err, boom)

	err = n.Notify(context.Background(), 0, "hi")
	require.ErrorIs(t, err, ErrNoChat)
}

func TestTelegramNotifierHonoursDeadline(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	defer close(sender.block)
	n := NewTelegramNotifierWithSender(sender, WithRateLimit(0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := n.Notify(ctx, 1, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zaptest.NewLogger(t))
	require.NoError(t, n.Notify(context.Background(), 5, "hi"))
	require.ErrorIs(t, n.Notify(context.Background(), 0, "hi"), ErrNoChat)
}
