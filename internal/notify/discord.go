package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Embed colours per outcome.
var discordColors = map[domain.Outcome]int{
	domain.OutcomeSuccess:   0x2ecc71,
	domain.OutcomeCancelled: 0x95a5a6,
	domain.OutcomeFailed:    0xe74c3c,
}

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses a
// default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one embed to the Discord webhook. The explorer link becomes the
// embed URL so the title is clickable.
func (d *DiscordSender) Send(ctx context.Context, n domain.Notification) error {
	embed := map[string]any{
		"title":       n.Title,
		"description": n.Description,
		"color":       discordColors[n.Outcome],
		"timestamp":   n.CreatedAt.UTC().Format(time.RFC3339),
	}
	if n.ExplorerURL != "" {
		embed["url"] = n.ExplorerURL
	}
	payload := map[string]any{"embeds": []any{embed}}
	// Discord returns 204 No Content on success.
	if err := postJSON(ctx, d.client, d.webhookURL, payload, nil); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
