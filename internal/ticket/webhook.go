// Package ticket delivers support tickets to an external webhook
// (an Odoo helpdesk in the original deployment).
package ticket

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

// Ticket is a support request assembled by the conversation flow.
type Ticket struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// Creator files a support ticket. Implementations are best-effort; the
// conversation flow proceeds regardless of the result.
type Creator interface {
	Create(ctx context.Context, t Ticket) error
}

// WebhookCreator POSTs tickets to a configured webhook URL with retries.
type WebhookCreator struct {
	url  string
	http *retryablehttp.Client
	log  *logging.Logger
}

// NewWebhookCreator creates a webhook-backed ticket creator.
func NewWebhookCreator(url string, log *logging.Logger) *WebhookCreator {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 8 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &WebhookCreator{url: url, http: rc, log: log.Sub("tickets")}
}

// Create files the ticket.
func (c *WebhookCreator) Create(ctx context.Context, t Ticket) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ticket webhook failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ticket webhook returned status %d", resp.StatusCode)
	}

	c.log.Info().Str("user", t.UserID).Str("subject", t.Subject).Msg("ticket created")
	return nil
}

// LogCreator is the fallback when no webhook URL is configured: it only
// records that a ticket would have been filed.
type LogCreator struct {
	log *logging.Logger
}

// NewLogCreator creates the logging fallback.
func NewLogCreator(log *logging.Logger) *LogCreator {
	return &LogCreator{log: log.Sub("tickets")}
}

// Create logs the ticket.
func (c *LogCreator) Create(_ context.Context, t Ticket) error {
	c.log.Info().
		Str("user", t.UserID).
		Str("subject", t.Subject).
		Msg("ticket webhook not configured, logging only")
	return nil
}
