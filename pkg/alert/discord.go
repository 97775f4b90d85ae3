package alert

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	colorFailure = 0xC41E3A
	colorSuccess = 0x2E8B57

	// discord rejects embed descriptions longer than this
	maxDescription = 4096
)

// Discord posts events to a channel webhook
type Discord struct {
	session   *discordgo.Session
	webhookID string
	token     string
}

// NewDiscord returns a notifier for a webhook URL of the form
// https://discord.com/api/webhooks/{id}/{token}
func NewDiscord(webhookURL string) (*Discord, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	// webhooks authenticate with their token, so the session needs none
	s, err := discordgo.New("")
	if err != nil {
		return nil, err
	}
	return &Discord{session: s, webhookID: id, token: token}, nil
}

func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("discord webhook url has no id and token: %s", raw)
}

// Name identifies the channel in logs
func (d *Discord) Name() string {
	return "discord"
}

// Notify sends the event as an embed
func (d *Discord) Notify(ctx context.Context, e *Event) error {
	md, err := RenderMarkdown(e)
	if err != nil {
		return err
	}
	if len(md) > maxDescription {
		md = md[:maxDescription-20] + "\n... (truncated)"
	}

	color := colorSuccess
	if e.Kind == KindFailure {
		color = colorFailure
	}
	params := &discordgo.WebhookParams{
		Username: "podds",
		Embeds: []*discordgo.MessageEmbed{{
			Title:       e.Subject(),
			Description: md,
			Color:       color,
			Timestamp:   e.At.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}},
	}
	if _, err := d.session.WebhookExecute(d.webhookID, d.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}
