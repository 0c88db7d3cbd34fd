// Package resend sends transactional email through the Resend HTTP API.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"provisioner/internal/domain"
)

type Client struct {
	APIKey  string
	From    string
	BaseURL string
	HTTP    *http.Client
}

type SendRequest struct {
	To      []string `json:"to"`
	From    string   `json:"from"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type SendResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

func (c *Client) Configured() bool { return c != nil && c.APIKey != "" }

// Send mirrors the other provider clients: response, HTTP status, raw body, error.
func (c *Client) Send(ctx context.Context, req SendRequest) (SendResponse, int, []byte, error) {
	if !c.Configured() {
		return SendResponse{}, 0, nil, fmt.Errorf("resend: %w", domain.ErrNotConfigured)
	}
	if req.From == "" {
		req.From = c.From
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return SendResponse{}, 0, nil, err
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return SendResponse{}, 0, nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return SendResponse{}, 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out SendResponse
	_ = json.Unmarshal(b, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Message != "" {
			return out, resp.StatusCode, b, errors.New(out.Message)
		}
		return out, resp.StatusCode, b, fmt.Errorf("resend send failed with status %d", resp.StatusCode)
	}
	return out, resp.StatusCode, b, nil
}
