// Package notify tells the operator about finished and failed runs.
package notify

import (
	"context"
	"errors"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
)

// Notifier delivers a short operator message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop discards every message. Used when no chat is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// StatusFunc renders the reply to /status.
type StatusFunc func(ctx context.Context) (string, error)

// Telegram sends notifications to one chat and answers /start and /status
// while polling.
type Telegram struct {
	bot    *tgbot.Bot
	chatID int64
	status StatusFunc
	log    logrus.FieldLogger
}

// Option customises the underlying bot.
type Option = tgbot.Option

// WithServerURL points the bot at a different API endpoint.
func WithServerURL(url string) Option { return tgbot.WithServerURL(url) }

// NewTelegram creates a notifier for chatID. The bot token is not verified
// until the first request.
func NewTelegram(token string, chatID int64, logger logrus.FieldLogger, opts ...Option) (*Telegram, error) {
	log := logger.WithField("component", "telegram")
	if token == "" {
		return nil, errors.New("telegram bot token is not set")
	}

	opts = append([]Option{tgbot.WithSkipGetMe()}, opts...)
	b, err := tgbot.New(token, opts...)
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	t := &Telegram{bot: b, chatID: chatID, log: log}
	t.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, t.startHandler)
	t.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/status", tgbot.MatchTypeExact, t.statusHandler)

	log.Info("Telegram notifier initialized")
	return t, nil
}

// SetStatus installs the /status renderer.
func (t *Telegram) SetStatus(fn StatusFunc) { t.status = fn }

// Notify sends text to the configured chat.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	_, err := t.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	})
	if err != nil {
		t.log.WithError(err).Error("Failed to send notification")
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// Start polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) {
	t.log.Info("Starting Telegram bot polling...")
	t.bot.Start(ctx)
	t.log.Info("Telegram bot polling stopped.")
}

func (t *Telegram) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	t.reply(ctx, b, update, "imagepool maintenance bot. Send /status for the current pool size.")
}

func (t *Telegram) statusHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	if update.Message.Chat.ID != t.chatID {
		t.log.WithField("chat_id", update.Message.Chat.ID).Warn("Ignoring /status from unknown chat")
		return
	}
	if t.status == nil {
		t.reply(ctx, b, update, "status unavailable")
		return
	}
	text, err := t.status(ctx)
	if err != nil {
		t.log.WithError(err).Error("Failed to render status")
		text = "status failed: " + err.Error()
	}
	t.reply(ctx, b, update, text)
}

func (t *Telegram) reply(ctx context.Context, b *tgbot.Bot, update *models.Update, text string) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
	if err != nil {
		t.log.WithError(err).WithField("chat_id", update.Message.Chat.ID).Error("Failed to send reply")
	}
}
