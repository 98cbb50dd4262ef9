package infrastructure

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramClient sends notifications from the platform bot to tenant chats.
type TelegramClient struct {
	Bot *tgbotapi.BotAPI
}

func NewTelegramClient(token string) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramClient{Bot: bot}, nil
}

// SendMessage sends content to the chat id given as a decimal string.
func (t *TelegramClient) SendMessage(ctx context.Context, to, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", to, err)
	}
	msg := tgbotapi.NewMessage(chatID, content)
	_, err = t.Bot.Send(msg)
	return err
}
