package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. It uses a default HTTP client with a 10-second timeout.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiURL: telegramAPI,
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts a message to the configured Telegram chat using the sendMessage
// API. The title is rendered in bold and the explorer link as a Markdown link.
func (t *TelegramSender) Send(ctx context.Context, n domain.Notification) error {
	text := fmt.Sprintf("*%s*\n%s", n.Title, body(n, func(url string) string {
		return fmt.Sprintf("[View transaction](%s)", url)
	}))
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	if err := postJSON(ctx, t.client, url, payload, nil); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
