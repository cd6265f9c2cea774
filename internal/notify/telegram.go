package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gopkg.in/telebot.v3"
)

// TelegramSender posts notifications to one chat through the Bot API.
type TelegramSender struct {
	bot  *telebot.Bot
	chat telebot.ChatID
}

// NewTelegramSender creates a TelegramSender. The bot is created offline:
// it only sends, so no getMe round trip or poller is needed.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	b, err := telebot.NewBot(telebot.Settings{
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &TelegramSender{bot: b, chat: telebot.ChatID(chatID)}, nil
}

// Send posts title in bold followed by message.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := fmt.Sprintf("*%s*\n%s", title, message)
	if _, err := t.bot.Send(t.chat, text, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown}); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
