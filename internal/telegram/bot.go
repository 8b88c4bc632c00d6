package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Bot adapts the Telegram Bot API to the Transport interface. All
// messages use HTML parse mode with previews disabled.
type Bot struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

func NewBot(token string, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	return &Bot{api: api, logger: logger}, nil
}

func (b *Bot) Send(ctx context.Context, chatID int64, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

func (b *Bot) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true

	if _, err := b.api.Send(edit); err != nil {
		// The API rejects edits that change nothing; that is our
		// desired end state anyway.
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		if targetGone(err) {
			return fmt.Errorf("edit message %d in chat %d: %w", messageID, chatID, ErrMessageGone)
		}
		return fmt.Errorf("edit message %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}

func (b *Bot) Delete(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	del := tgbotapi.NewDeleteMessage(chatID, messageID)
	if _, err := b.api.Request(del); err != nil {
		// Already gone is the desired end state.
		if strings.Contains(err.Error(), "message to delete not found") || targetGone(err) {
			return nil
		}
		return fmt.Errorf("delete message %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}

// targetGone matches the API errors meaning the message or chat cannot
// be addressed anymore: deleted message, deleted chat, bot removed.
func targetGone(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "message to edit not found") ||
		strings.Contains(msg, "chat not found") ||
		strings.Contains(msg, "bot was kicked") ||
		strings.Contains(msg, "bot was blocked")
}

// Updates returns the long-polling update channel for command handling.
func (b *Bot) Updates() tgbotapi.UpdatesChannel {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	return b.api.GetUpdatesChan(cfg)
}

// StopUpdates stops the long-polling loop.
func (b *Bot) StopUpdates() {
	b.api.StopReceivingUpdates()
}
