// Package notify alerts a human when an agent record parks in a state that
// needs their attention (awaiting_human approval, error inspection).
package notify

import (
	"context"
	"fmt"

	"github.com/danyelangel/automata/internal/agent"
	"github.com/danyelangel/automata/internal/logger"
	"github.com/mymmrac/telego"
)

// messageSender is the slice of the telego bot API the notifier uses.
// Narrowed for testability.
type messageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramConfig holds notifier configuration.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// Telegram sends attention notifications to a fixed chat.
type Telegram struct {
	bot    messageSender
	chatID int64
	logger *logger.Logger
}

// NewTelegram creates a notifier backed by the Telegram Bot API.
func NewTelegram(cfg TelegramConfig, log *logger.Logger) (*Telegram, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID, logger: log}, nil
}

// newWithSender is the test seam.
func newWithSender(sender messageSender, chatID int64, log *logger.Logger) *Telegram {
	return &Telegram{bot: sender, chatID: chatID, logger: log}
}

// AgentNeedsAttention posts a short summary of the parked record.
func (t *Telegram) AgentNeedsAttention(ctx context.Context, rec *agent.Record, reason string) error {
	text := fmt.Sprintf("%s\nStatus: %s\nReason: %s\nAgent: %s (tenant %s)",
		rec.Name, rec.Status, reason, rec.ID, rec.TenantID)

	params := telego.SendMessageParams{
		ChatID: telego.ChatID{ID: t.chatID},
		Text:   text,
	}
	if _, err := t.bot.SendMessage(ctx, &params); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}

	t.logger.DebugCtx(ctx, "Attention notification sent",
		logger.Field{Key: "agent_id", Value: rec.ID},
		logger.Field{Key: "status", Value: string(rec.Status)})
	return nil
}
