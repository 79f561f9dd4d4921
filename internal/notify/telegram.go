package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramSink posts new calls and reconnect alerts to a chat.
type TelegramSink struct {
	sender messageSender
	chatID int64
	kinds  map[EventKind]bool
}

// NewTelegramSink creates a bot client for token. The token is not verified until the first send.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramSink{
		sender: b,
		chatID: chatID,
		kinds:  kindSet(EventNewCall, EventReconnectRequired),
	}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Accepts(kind EventKind) bool { return t.kinds[kind] }

func (t *TelegramSink) Send(ctx context.Context, ev Event) error {
	params := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   telegramText(ev),
	}
	if _, err := t.sender.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message to chat_id %d: %w", t.chatID, err)
	}
	return nil
}

func (t *TelegramSink) Close() error { return nil }

func telegramText(ev Event) string {
	if ev.Kind != EventNewCall || ev.Call == nil {
		return ev.Message
	}
	c := ev.Call.Call
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", ev.Call.Title)
	fmt.Fprintf(&b, "Server: %s (%s)\n", c.ServerName, c.IP)
	fmt.Fprintf(&b, "Reporter: %s (%s)\n", c.ClientName, c.ClientID)
	fmt.Fprintf(&b, "Target: %s (%s)\n", c.TargetName, c.TargetID)
	fmt.Fprintf(&b, "Reason: %s", c.TargetReason)
	return b.String()
}
