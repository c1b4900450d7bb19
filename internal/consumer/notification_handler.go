package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Varn22/pixel-time-tracker/internal/notify"
	platformevents "github.com/Varn22/pixel-time-tracker/pkg/platform/events"
)

// Notification outcomes.
const (
	NotificationSent     = "sent"
	NotificationDisabled = "disabled"
	NotificationFailed   = "failed"
	NotificationInvalid  = "invalid"
)

// NotificationHandler turns level-up and achievement events into Telegram messages.
// Delivery is best effort: every failure is logged and counted, never returned, so the
// offset is committed and nothing is retried.
type NotificationHandler struct {
	notifier notify.Notifier
	timeout  time.Duration
	logger   *zap.Logger
}

// NewNotificationHandler constructs a handler. A non-positive timeout defaults to five seconds.
func NewNotificationHandler(notifier notify.Notifier, timeout time.Duration, logger *zap.Logger) *NotificationHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{notifier: notifier, timeout: timeout, logger: logger}
}

// Handle implements Handler.
func (h *NotificationHandler) Handle(ctx context.Context, msg Message) error {
	var (
		recipient platformevents.Recipient
		text      string
	)

	switch msg.EventType {
	case platformevents.TypeLevelUp:
		var payload platformevents.LevelUp
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.invalid(msg, err)
			return nil
		}
		recipient = payload.Recipient
		text = notify.LevelUpText(payload.NewLevel)
	case platformevents.TypeAchievementUnlocked:
		var payload platformevents.AchievementUnlocked
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.invalid(msg, err)
			return nil
		}
		recipient = payload.Recipient
		text = notify.AchievementText(payload.Title, payload.Description)
	default:
		return nil
	}

	if !recipient.Notifications {
		recordNotification(msg.EventType, NotificationDisabled)
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.notifier.Notify(sendCtx, recipient.TelegramID, text); err != nil {
		var delivery *notify.DeliveryError
		chatID := recipient.TelegramID
		if errors.As(err, &delivery) {
			chatID = delivery.ChatID
		}
		h.logger.Warn("notification delivery failed",
			zap.String("event_type", msg.EventType),
			zap.String("user_id", msg.UserID),
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		recordNotification(msg.EventType, NotificationFailed)
		return nil
	}
	recordNotification(msg.EventType, NotificationSent)
	return nil
}

func (h *NotificationHandler) invalid(msg Message, err error) {
	h.logger.Warn("notification payload invalid",
		zap.String("event_type", msg.EventType),
		zap.Int64("offset", msg.Offset),
		zap.Error(err))
	recordNotification(msg.EventType, NotificationInvalid)
}
