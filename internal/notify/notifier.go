// Package notify delivers user-facing messages to Telegram chats.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNoChat is returned when a message has no destination chat.
var ErrNoChat = errors.New("notify: missing chat id")

// Notifier sends a text message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// DeliveryError reports a message that could not be delivered.
type DeliveryError struct {
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: deliver to chat %d: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// LogNotifier writes messages to the log instead of sending them. Used when no bot token is set.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the message.
func (n *LogNotifier) Notify(_ context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return &DeliveryError{ChatID: chatID, Err: ErrNoChat}
	}
	n.logger.Info("notification", zap.Int64("chat_id", chatID), zap.String("text", text))
	return nil
}
