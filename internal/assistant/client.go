// Package assistant talks to the OpenAI Assistants API: one conversation
// thread per user, runs polled to completion with a hard wall-clock
// timeout.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jortega-dev/warelay/internal/logging"
)

// Config configures the assistant client.
type Config struct {
	APIKey       string
	AssistantID  string
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
}

// Client drives assistant runs over the REST API.
type Client struct {
	cfg     Config
	threads *ThreadMap
	client  *http.Client
	log     *logging.Logger
}

// NewClient creates an assistant client. The thread map persists each
// user's conversation handle.
func NewClient(cfg Config, threads *ThreadMap, log *logging.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Client{
		cfg:     cfg,
		threads: threads,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.Sub("assistant"),
	}
}

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageListResponse struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// Reply sends the user's message on their conversation thread and waits
// for the assistant's answer. All failure modes collapse into the
// returned Outcome; no error escapes to the caller.
func (c *Client) Reply(ctx context.Context, userID, name, message string) Outcome {
	threadID, err := c.getOrCreateThread(ctx, userID)
	if err != nil {
		c.log.Error().Err(err).Str("user", userID).Msg("failed to resolve thread")
		return Outcome{Status: StatusFailed, Reason: err.Error()}
	}

	full := message
	if name != "" {
		full = fmt.Sprintf("The user's name is %s. %s", name, message)
	}
	if err := c.addMessage(ctx, threadID, full); err != nil {
		c.log.Error().Err(err).Str("user", userID).Msg("failed to add message")
		return Outcome{Status: StatusFailed, Reason: err.Error()}
	}

	run, err := c.createRun(ctx, threadID)
	if err != nil {
		c.log.Error().Err(err).Str("user", userID).Msg("failed to create run")
		return Outcome{Status: StatusFailed, Reason: err.Error()}
	}

	return c.waitForRun(ctx, userID, threadID, run.ID)
}

// waitForRun polls the run status until it completes, fails, or the
// wall-clock timeout expires. On timeout the run is cancelled
// best-effort before returning.
func (c *Client) waitForRun(ctx context.Context, userID, threadID, runID string) Outcome {
	deadline := time.Now().Add(c.cfg.Timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			c.cancelRun(threadID, runID)
			return Outcome{Status: StatusTimedOut, Reason: ctx.Err().Error()}
		case <-time.After(c.cfg.PollInterval):
		}

		run, err := c.getRun(ctx, threadID, runID)
		if err != nil {
			c.log.Error().Err(err).Str("user", userID).Msg("failed to poll run")
			return Outcome{Status: StatusFailed, Reason: err.Error()}
		}

		switch run.Status {
		case "completed":
			text, err := c.latestAssistantText(ctx, threadID)
			if err != nil {
				c.log.Error().Err(err).Str("user", userID).Msg("failed to read reply")
				return Outcome{Status: StatusFailed, Reason: err.Error()}
			}
			return Outcome{Status: StatusCompleted, Text: text}
		case "failed", "cancelled", "expired":
			reason := run.Status
			if run.LastError != nil {
				reason = fmt.Sprintf("%s: %s", run.Status, run.LastError.Message)
			}
			c.log.Error().Str("user", userID).Str("status", run.Status).Msg("assistant run failed")
			return Outcome{Status: StatusFailed, Reason: reason}
		}
	}

	c.log.Error().Str("user", userID).Dur("timeout", c.cfg.Timeout).Msg("assistant run timed out")
	c.cancelRun(threadID, runID)
	return Outcome{Status: StatusTimedOut, Reason: "run did not complete in time"}
}

func (c *Client) getOrCreateThread(ctx context.Context, userID string) (string, error) {
	if threadID := c.threads.Get(userID); threadID != "" {
		return threadID, nil
	}

	var thread threadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/threads", map[string]any{}, &thread); err != nil {
		return "", err
	}
	c.threads.Put(userID, thread.ID)
	c.log.Info().Str("user", userID).Str("thread", thread.ID).Msg("created new thread")
	return thread.ID, nil
}

func (c *Client) addMessage(ctx context.Context, threadID, content string) error {
	body := map[string]any{"role": "user", "content": content}
	return c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, nil)
}

func (c *Client) createRun(ctx context.Context, threadID string) (*runResponse, error) {
	body := map[string]any{"assistant_id": c.cfg.AssistantID}
	var run runResponse
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) getRun(ctx context.Context, threadID, runID string) (*runResponse, error) {
	var run runResponse
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// cancelRun is best-effort and runs on a fresh short-lived context since
// the caller's may already be done.
func (c *Client) cancelRun(threadID, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs/"+runID+"/cancel", map[string]any{}, nil); err != nil {
		c.log.Warn().Err(err).Str("run", runID).Msg("failed to cancel run")
	}
}

// latestAssistantText returns the first assistant-authored text block
// from the thread's message list, newest first.
func (c *Client) latestAssistantText(ctx context.Context, threadID string) (string, error) {
	var list messageListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil, &list); err != nil {
		return "", err
	}
	for _, msg := range list.Data {
		if msg.Role != "assistant" {
			continue
		}
		for _, content := range msg.Content {
			if content.Type == "text" {
				return content.Text.Value, nil
			}
		}
	}
	return "", fmt.Errorf("no assistant text in thread %s", threadID)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
