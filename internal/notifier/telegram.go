package notifier

import (
	"context"
	"net/http"
	"time"

	"github.com/whale-tracker/internal/config"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	tb "gopkg.in/tucnak/telebot.v2"
)

// Telegram sends alerts to a Telegram chat
type Telegram struct {
	bot    *tb.Bot
	chat   *tb.Chat
	logger *logging.Logger
}

// NewTelegram creates a Telegram notifier, or returns nil when no bot token or chat is configured
func NewTelegram(cfg config.TelegramConfig, logger *logging.Logger) (*Telegram, error) {
	return newTelegram(cfg, "", logger)
}

func newTelegram(cfg config.TelegramConfig, apiURL string, logger *logging.Logger) (*Telegram, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		logger.Debug("Telegram not configured, channel disabled")
		return nil, nil
	}

	bot, err := tb.NewBot(tb.Settings{
		URL:         apiURL,
		Token:       cfg.BotToken,
		Synchronous: true,
		Client:      &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, apperrors.NewNotificationError("telegram", err)
	}

	logger.WithField("chatId", cfg.ChatID).Info("Telegram bot initialized")
	return &Telegram{
		bot:    bot,
		chat:   &tb.Chat{ID: cfg.ChatID},
		logger: logger.WithField("channel", "telegram"),
	}, nil
}

// Name returns the channel name
func (t *Telegram) Name() string {
	return "telegram"
}

// Send posts the alert as a plain text message
func (t *Telegram) Send(ctx context.Context, alert *models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(t.chat, FormatMessage(alert)); err != nil {
		return err
	}
	t.logger.WithField("wallet", alert.Wallet).Debug("Sent telegram alert")
	return nil
}

// Close is a no-op; the bot is never started for polling
func (t *Telegram) Close() error {
	return nil
}
