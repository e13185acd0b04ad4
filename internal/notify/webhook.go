package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/marginterm/internal/crypto"
	"github.com/alanyoungcy/marginterm/internal/domain"
)

// WebhookSender posts the notification JSON to an arbitrary endpoint, signed
// with HMAC-SHA256 when a secret is configured.
type WebhookSender struct {
	url    string
	signer *crypto.WebhookSigner
	client *http.Client
}

// NewWebhookSender creates a WebhookSender. An empty secret sends unsigned.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		signer: crypto.NewWebhookSigner(secret),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts n as JSON.
func (w *WebhookSender) Send(ctx context.Context, n domain.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}
	var headers map[string]string
	if w.signer != nil {
		headers = w.signer.Headers(raw)
	}
	if err := post(ctx, w.client, w.url, raw, headers); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string {
	return "webhook"
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return post(ctx, client, url, raw, headers)
}

func post(ctx context.Context, client *http.Client, url string, raw []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
