package notifier

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/whale-tracker/internal/config"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// Embed colors per alert level
const (
	colorUrgent = 0xE74C3C
	colorHigh   = 0xE67E22
	colorInfo   = 0x3498DB
)

// Discord sends alerts to a Discord channel as embeds
type Discord struct {
	session   *discordgo.Session
	channelID string
	logger    *logging.Logger
}

// NewDiscord creates a Discord notifier, or returns nil when no bot token or channel is configured
func NewDiscord(cfg config.DiscordConfig, logger *logging.Logger) (*Discord, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.BotToken == "" || cfg.ChannelID == "" {
		logger.Debug("Discord not configured, channel disabled")
		return nil, nil
	}

	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, apperrors.NewNotificationError("discord", err)
	}

	logger.WithField("channelId", cfg.ChannelID).Info("Discord bot initialized")
	return &Discord{
		session:   session,
		channelID: cfg.ChannelID,
		logger:    logger.WithField("channel", "discord"),
	}, nil
}

// Name returns the channel name
func (d *Discord) Name() string {
	return "discord"
}

// Send posts the alert as an embed
func (d *Discord) Send(ctx context.Context, alert *models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.session.ChannelMessageSendEmbed(d.channelID, buildEmbed(alert)); err != nil {
		return err
	}
	d.logger.WithField("wallet", alert.Wallet).Debug("Sent discord alert")
	return nil
}

// Close releases the session
func (d *Discord) Close() error {
	return d.session.Close()
}

func buildEmbed(alert *models.Alert) *discordgo.MessageEmbed {
	color := colorInfo
	switch alert.Level {
	case types.AlertUrgent:
		color = colorUrgent
	case types.AlertHigh:
		color = colorHigh
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Wallet", Value: alert.Wallet},
		{Name: alert.Action(), Value: formatBTC(alert.AmountBTC) + " BTC", Inline: true},
		{Name: "Portfolio", Value: formatPct(alert.PortfolioPct) + "%", Inline: true},
	}
	if alert.ValueUSD != nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Value", Value: "$" + formatUSD(*alert.ValueUSD), Inline: true})
	}
	if alert.ROI != nil {
		roi := formatPct(*alert.ROI) + "%"
		if alert.TraderType != "" {
			roi += " (" + string(alert.TraderType) + ")"
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "ROI", Value: roi, Inline: true})
	}

	return &discordgo.MessageEmbed{
		Title:       alert.Level.Emoji() + " " + string(alert.Level) + " whale alert",
		Description: alert.Date.String(),
		Color:       color,
		Fields:      fields,
		Timestamp:   alert.CreatedAt.Format(time.RFC3339),
	}
}
