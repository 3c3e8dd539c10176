package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// colorAlert is the embed sidebar color for operator alerts
const colorAlert = 0xE74C3C

// EmbedSender is the part of *discordgo.Session the alerter needs
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordAlerter posts operator alerts to a Discord channel
type DiscordAlerter struct {
	session   EmbedSender
	channelID string
	now       func() time.Time
}

// NewDiscordAlerter creates a new alerter for channelID
func NewDiscordAlerter(session EmbedSender, channelID string) *DiscordAlerter {
	return &DiscordAlerter{
		session:   session,
		channelID: channelID,
		now:       time.Now,
	}
}

// Alert sends an embed with the title and message
func (a *DiscordAlerter) Alert(ctx context.Context, title string, message string) error {
	embed := &discordgo.MessageEmbed{
		Title:       "🚨 " + title,
		Description: message,
		Color:       colorAlert,
		Timestamp:   a.now().UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "ledger"},
	}

	if _, err := a.session.ChannelMessageSendEmbed(a.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send alert to channel %s: %w", a.channelID, err)
	}
	return nil
}

// LogAlerter writes alerts to the log when no alert channel is configured
type LogAlerter struct{}

// Alert logs the alert at error level
func (LogAlerter) Alert(_ context.Context, title string, message string) error {
	log.WithField("alert", title).Error(message)
	return nil
}
