package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// HTTPSender posts notices to a transactional mail API as JSON.
type HTTPSender struct {
	APIKey     string
	BaseURL    string
	From       string
	HTTPClient *http.Client
}

// NewHTTPSender returns a sender for the given API key, endpoint and sender address.
func NewHTTPSender(apiKey, baseURL, from string) *HTTPSender {
	return &HTTPSender{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		From:       from,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type sendRequest struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Template  Kind   `json:"template"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// Send posts the notice. Any non-2xx response is an error. Does not log the token.
func (c *HTTPSender) Send(ctx context.Context, n Notice) error {
	if c.APIKey == "" || c.BaseURL == "" {
		return fmt.Errorf("notify: API not configured")
	}
	if n.To == "" {
		return fmt.Errorf("notify: recipient is required")
	}
	body := sendRequest{From: c.From, To: n.To, Template: n.Kind, Token: n.Token}
	if !n.ExpiresAt.IsZero() {
		body.ExpiresAt = n.ExpiresAt.UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
