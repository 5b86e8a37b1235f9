package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Slack client error constants
var (
	// ErrSlackNotConfigured marks a missing chat integration. Callers treat
	// it as a no-op with a logged warning, never as a delivery failure.
	ErrSlackNotConfigured = errors.New("slack integration not configured")

	// ErrSlackTransient marks timeouts and rate limits that are worth retrying
	ErrSlackTransient = errors.New("transient slack error")
)

// SlackMessage is one message to post: blocks for rich layout plus a plain
// text fallback, optionally threaded under a previous message.
type SlackMessage struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	Blocks   []any  `json:"blocks,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// SlackClient posts messages to a chat workspace
type SlackClient interface {
	PostMessage(ctx context.Context, msg SlackMessage) (messageID string, err error)
	Configured() bool
}

// SlackWebAPIClient implements SlackClient against the chat.postMessage web API
type SlackWebAPIClient struct {
	apiURL   string
	botToken string
	client   *http.Client
}

// NewSlackWebAPIClient creates a new slack client. An empty bot token
// produces an unconfigured client whose sends are refused with
// ErrSlackNotConfigured.
func NewSlackWebAPIClient(apiURL, botToken string, timeout time.Duration) *SlackWebAPIClient {
	if apiURL == "" {
		apiURL = "https://slack.com/api"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SlackWebAPIClient{
		apiURL:   apiURL,
		botToken: botToken,
		client:   &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the integration carries credentials
func (c *SlackWebAPIClient) Configured() bool {
	return c.botToken != ""
}

type slackPostResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error"`
}

// PostMessage posts one message and returns the provider message ID (ts).
// Timeouts and rate limits are wrapped in ErrSlackTransient so the caller
// can retry them; API-level rejections are permanent.
func (c *SlackWebAPIClient) PostMessage(ctx context.Context, msg SlackMessage) (string, error) {
	if !c.Configured() {
		return "", ErrSlackNotConfigured
	}

	payload, _ := json.Marshal(msg)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	resp, err := c.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("%w: %v", ErrSlackTransient, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrSlackTransient, err)
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: http status %d", ErrSlackTransient, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("slack postMessage http status: %d", resp.StatusCode)
	}

	var out slackPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode slack response: %w", err)
	}
	if !out.OK {
		// Rate limiting can also surface at the API level
		if out.Error == "ratelimited" {
			return "", fmt.Errorf("%w: %s", ErrSlackTransient, out.Error)
		}
		return "", fmt.Errorf("slack postMessage failed: %s", out.Error)
	}

	return out.TS, nil
}
