// Package whatsapp implements the Cloud API surface: outbound delivery,
// webhook payload parsing, signature verification, and text formatting.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/jortega-dev/warelay/internal/logging"
)

// ClientConfig holds Graph API credentials and endpoints.
type ClientConfig struct {
	AccessToken   string
	PhoneNumberID string
	GraphVersion  string
	BaseURL       string
}

// Client sends text messages through the Graph API. Transient failures
// are retried with exponential backoff; exhaustion is reported to the
// caller who logs and swallows it (fire-and-forget delivery).
type Client struct {
	cfg  ClientConfig
	http *retryablehttp.Client
	log  *logging.Logger
}

// NewClient creates a delivery client.
func NewClient(cfg ClientConfig, log *logging.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com"
	}
	if cfg.GraphVersion == "" {
		cfg.GraphVersion = "v18.0"
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 8 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &Client{cfg: cfg, http: rc, log: log.Sub("whatsapp")}
}

// textPayload is the fixed send envelope for a text message.
type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// SendText delivers a text message to a WhatsApp user.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	payload, err := json.Marshal(textPayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.cfg.BaseURL, c.cfg.GraphVersion, c.cfg.PhoneNumberID)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send failed with status %d", resp.StatusCode)
	}

	c.log.Info().Str("to", to).Msg("message sent")
	return nil
}

// Notify implements the session notifier port.
func (c *Client) Notify(ctx context.Context, userID, text string) error {
	return c.SendText(ctx, userID, text)
}
