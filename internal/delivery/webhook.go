package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/relaycore/assistant-core/pkg/models"
)

// WebhookDeliverer forwards a Notification as a JSON POST to a single
// configured URL. It is the one concrete Deliverer this system ships:
// the platform-specific bot/API integration that actually reaches a
// messaging surface lives in the adapter the URL points at, outside this
// module's scope.
type WebhookDeliverer struct {
	url    string
	client *http.Client
}

// NewWebhookDeliverer builds a WebhookDeliverer posting to url.
func NewWebhookDeliverer(url string, client *http.Client) *WebhookDeliverer {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookDeliverer{url: url, client: client}
}

// Deliver POSTs the notification's JSON encoding to the configured URL,
// treating any non-2xx response as a delivery failure.
func (d *WebhookDeliverer) Deliver(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("webhook: encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post to %s: %w", d.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s responded with status %d", d.url, resp.StatusCode)
	}
	return nil
}
