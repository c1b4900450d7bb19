package notify

import (
	"context"
	"errors"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sender is the subset of tgbotapi.BotAPI used by TelegramNotifier.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramOption configures a TelegramNotifier.
type TelegramOption func(*TelegramNotifier)

// WithLogger sets the notifier logger.
func WithLogger(logger *zap.Logger) TelegramOption {
	return func(n *TelegramNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithRateLimit caps outgoing messages per second. Zero or less disables the limit.
func WithRateLimit(perSecond float64) TelegramOption {
	return func(n *TelegramNotifier) {
		if perSecond <= 0 {
			n.limiter = nil
			return
		}
		n.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// TelegramNotifier sends messages through the Telegram Bot API.
type TelegramNotifier struct {
	sender  Sender
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewTelegramNotifier connects to the Bot API with a client bounded by timeout.
func NewTelegramNotifier(token string, timeout time.Duration, opts ...TelegramOption) (*TelegramNotifier, error) {
	if token == "" {
		return nil, errors.New("notify: telegram bot token is required")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return NewTelegramNotifierWithSender(bot, opts...), nil
}

// NewTelegramNotifierWithSender wraps an existing sender.
func NewTelegramNotifierWithSender(sender Sender, opts ...TelegramOption) *TelegramNotifier {
	n := &TelegramNotifier{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(25), 1),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends text to chatID. It waits for the rate limiter and gives up when ctx ends.
func (n *TelegramNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return &DeliveryError{ChatID: chatID, Err: ErrNoChat}
	}
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return &DeliveryError{ChatID: chatID, Err: err}
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := n.sender.Send(tgbotapi.NewMessage(chatID, text))
		done <- err
	}()

	select {
	case <-ctx.Done():
		return &DeliveryError{ChatID: chatID, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return &DeliveryError{ChatID: chatID, Err: err}
		}
	}
	n.logger.Debug("notification sent", zap.Int64("chat_id", chatID))
	return nil
}
