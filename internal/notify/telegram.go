// Package notify delivers payment notifications to managers and customers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tripdesk/internal/domain"
	"tripdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier posts every task to the configured manager chats.
type TelegramNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewTelegramNotifier(bot domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs, logger: logger}
}

func (n *TelegramNotifier) Notify(_ context.Context, task *models.NotificationTask, event *models.PaymentEvent) error {
	if n.bot == nil || len(n.chatIDs) == 0 {
		return nil
	}
	text := managerText(task.TaskType, event)

	var errs []error
	for _, chatID := range n.chatIDs {
		if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Str("payment_id", event.PaymentID).Msg("telegram send failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func managerText(taskType string, e *models.PaymentEvent) string {
	var title string
	switch taskType {
	case models.TaskNotifyCaptured:
		title = "✅ Payment captured"
	case models.TaskNotifyFailed:
		title = "❌ Payment failed"
	case models.TaskNotifyRefunded:
		title = "↩️ Payment refunded"
	case models.TaskNotifyDegraded:
		title = "⚠️ Gateway unavailable, booking accepted with a mock charge. Reconcile manually"
	default:
		title = "Payment update"
	}

	var b strings.Builder
	b.WriteString(title)
	fmt.Fprintf(&b, "\nKind: %s", e.Kind)
	if e.ProgressID != "" {
		fmt.Fprintf(&b, "\nBooking: %s", e.ProgressID)
	}
	fmt.Fprintf(&b, "\nCharge: %s", e.PaymentID)
	if e.Amount != "" {
		fmt.Fprintf(&b, "\nAmount: %s %s", e.Amount, e.Currency)
	}
	return b.String()
}
