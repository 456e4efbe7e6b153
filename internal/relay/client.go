package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a companion response is read.
const maxResponseBytes = 4 << 20

// ErrRelayFailed is wrapped by every error returned from Send.
var ErrRelayFailed = errors.New("relay: command failed")

// Command is the body posted to the companion server.
type Command struct {
	DeviceID string         `json:"device_id"`
	Command  string         `json:"command"`
	Params   map[string]any `json:"params,omitempty"`
	// CommandID links the relayed request to the queued command, if any.
	CommandID string `json:"command_id,omitempty"`
}

// Result is the companion server's reply.
type Result struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Client posts device commands to the companion server's /command endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a relay client. baseURL is the companion server root,
// e.g. "http://companion:9000".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the full command URL.
func (c *Client) Endpoint() string {
	return c.BaseURL + "/command"
}

// Send relays cmd and returns the companion's result. A reply with
// success=false is returned together with an error wrapping ErrRelayFailed.
func (c *Client) Send(ctx context.Context, cmd Command) (*Result, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %w", ErrRelayFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrRelayFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %w", ErrRelayFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrRelayFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status code: %d, body: %s", ErrRelayFailed, resp.StatusCode, string(body))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrRelayFailed, err)
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "companion reported failure"
		}
		return &result, fmt.Errorf("%w: %s", ErrRelayFailed, msg)
	}
	return &result, nil
}
