// Package notify sends parent-facing alerts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"choicetube/internal/core"
)

// Notifier alerts a parent about screen-time overrides
type Notifier interface {
	UnlockGranted(ctx context.Context, userID string, decision core.Decision) error
	UnlockRefused(ctx context.Context, userID string, reason error) error
}

// Nop discards notifications
type Nop struct{}

func (Nop) UnlockGranted(context.Context, string, core.Decision) error { return nil }
func (Nop) UnlockRefused(context.Context, string, error) error        { return nil }

// dispatchTimeout bounds a notification sent in the background
const dispatchTimeout = 10 * time.Second

// Dispatch reports an unlock attempt in the background. Only granted
// unlocks and wrong passwords are reported.
func Dispatch(n Notifier, logger *slog.Logger, userID string, decision core.Decision, err error) {
	if err != nil && !errors.Is(err, core.ErrPasswordMismatch) {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		var sendErr error
		if err == nil {
			sendErr = n.UnlockGranted(ctx, userID, decision)
		} else {
			sendErr = n.UnlockRefused(ctx, userID, err)
		}
		if sendErr != nil {
			logger.Warn("Failed to send unlock notification",
				"component", "notify",
				"user_id", userID,
				"error", sendErr)
		}
	}()
}

// Sender is the part of the Telegram bot API used for sending
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts alerts to a Telegram chat
type TelegramNotifier struct {
	sender   Sender
	chatID   int64
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewTelegramNotifier connects to the Telegram bot API
func NewTelegramNotifier(token string, chatID int64, location *time.Location, logger *slog.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	return NewTelegramNotifierWithSender(api, chatID, location, logger), nil
}

// NewTelegramNotifierWithSender creates a notifier over an existing sender
func NewTelegramNotifierWithSender(sender Sender, chatID int64, location *time.Location, logger *slog.Logger) *TelegramNotifier {
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramNotifier{
		sender:   sender,
		chatID:   chatID,
		location: location,
		logger:   logger.With("component", "telegram"),
		now:      time.Now,
	}
}

// UnlockGranted reports a successful parent override
func (n *TelegramNotifier) UnlockGranted(ctx context.Context, userID string, decision core.Decision) error {
	return n.send(FormatUnlockGranted(userID, decision, n.now().In(n.location)))
}

// UnlockRefused reports a failed override attempt
func (n *TelegramNotifier) UnlockRefused(ctx context.Context, userID string, reason error) error {
	return n.send(FormatUnlockRefused(userID, reason, n.now().In(n.location)))
}

func (n *TelegramNotifier) send(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.sender.Send(msg); err != nil {
		n.logger.Error("Failed to send message",
			"chat_id", n.chatID,
			"error", err,
		)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// FormatUnlockGranted formats the override notice
func FormatUnlockGranted(userID string, decision core.Decision, at time.Time) string {
	var sb strings.Builder
	sb.WriteString("🔓 *Screen time unlocked*\n")
	sb.WriteString(fmt.Sprintf("User: `%s`\n", userID))
	sb.WriteString(fmt.Sprintf("Used today: %d min / %d min\n", decision.UsedMinutes, decision.LimitMinutes))
	sb.WriteString(fmt.Sprintf("At: %s", at.Format("15:04")))
	return sb.String()
}

// FormatUnlockRefused formats the failed attempt notice
func FormatUnlockRefused(userID string, reason error, at time.Time) string {
	var sb strings.Builder
	sb.WriteString("⚠️ *Unlock attempt refused*\n")
	sb.WriteString(fmt.Sprintf("User: `%s`\n", userID))
	if reason != nil {
		sb.WriteString(fmt.Sprintf("Reason: %s\n", reason.Error()))
	}
	sb.WriteString(fmt.Sprintf("At: %s", at.Format("15:04")))
	return sb.String()
}
