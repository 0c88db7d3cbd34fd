// Package vapi is a client for the voice agent platform: assistants, imported
// phone numbers and outbound test calls.
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aniladanir/retry"

	"provisioner/internal/domain"
	"provisioner/internal/observability"
	"provisioner/internal/providers"
)

var ErrAssistantNotFound = errors.New("vapi: assistant not found")

// APIError carries the HTTP status of a failed call; Status is 0 when no
// response was received.
type APIError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vapi %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vapi %s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }

// StatusOf extracts the HTTP status from an error returned by Client.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
	Retrier *retry.Retrier
	Logger  *slog.Logger

	// Carrier credentials used when importing a purchased number.
	TwilioAccountSID string
	TwilioAuthToken  string

	unversioned atomic.Bool
}

func (c *Client) Configured() bool { return c != nil && c.APIKey != "" }

// CreateAssistant is not retried: a lost response could leave a duplicate assistant.
func (c *Client) CreateAssistant(ctx context.Context, req AssistantRequest) (Assistant, error) {
	var out Assistant
	_, err := c.do(ctx, "create_assistant", http.MethodPost, "/assistant", req, &out)
	return out, err
}

func (c *Client) UpdateAssistant(ctx context.Context, id string, req AssistantRequest) (Assistant, error) {
	var out Assistant
	err := c.safe(ctx, "update_assistant", func() (int, error) {
		return c.do(ctx, "update_assistant", http.MethodPatch, "/assistant/"+id, req, &out)
	})
	return out, err
}

func (c *Client) GetAssistant(ctx context.Context, id string) (Assistant, error) {
	var out Assistant
	err := c.safe(ctx, "get_assistant", func() (int, error) {
		return c.do(ctx, "get_assistant", http.MethodGet, "/assistant/"+id, nil, &out)
	})
	if StatusOf(err) == http.StatusNotFound {
		return Assistant{}, ErrAssistantNotFound
	}
	return out, err
}

func (c *Client) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	var out []PhoneNumber
	err := c.safe(ctx, "list_numbers", func() (int, error) {
		out = nil
		return c.do(ctx, "list_numbers", http.MethodGet, "/phone-number", nil, &out)
	})
	return out, err
}

// ImportPhoneNumber registers a carrier number with the platform. A number the
// platform already knows is looked up instead.
func (c *Client) ImportPhoneNumber(ctx context.Context, number, name string) (PhoneNumber, error) {
	req := importRequest{
		Provider:         "twilio",
		Number:           number,
		TwilioAccountSid: c.TwilioAccountSID,
		TwilioAuthToken:  c.TwilioAuthToken,
		Name:             name,
	}
	var out PhoneNumber
	_, err := c.do(ctx, "import_number", http.MethodPost, "/phone-number", req, &out)
	if err == nil {
		return out, nil
	}
	if !alreadyExists(err) {
		return PhoneNumber{}, err
	}
	existing, ok, lerr := c.findNumber(ctx, number)
	if lerr != nil {
		return PhoneNumber{}, lerr
	}
	if !ok {
		return PhoneNumber{}, err
	}
	return existing, nil
}

func (c *Client) AssignPhoneNumber(ctx context.Context, phoneNumberID, assistantID string) (PhoneNumber, error) {
	var out PhoneNumber
	body := map[string]string{"assistantId": assistantID}
	err := c.safe(ctx, "assign_number", func() (int, error) {
		return c.do(ctx, "assign_number", http.MethodPatch, "/phone-number/"+phoneNumberID, body, &out)
	})
	return out, err
}

// LinkNumber makes the platform route calls on number to the assistant,
// importing the number first when needed. Safe to repeat.
func (c *Client) LinkNumber(ctx context.Context, number, assistantID, name string) (PhoneNumber, error) {
	pn, ok, err := c.findNumber(ctx, number)
	if err != nil {
		return PhoneNumber{}, err
	}
	if !ok {
		if pn, err = c.ImportPhoneNumber(ctx, number, name); err != nil {
			return PhoneNumber{}, err
		}
	}
	if pn.AssistantID == assistantID {
		return pn, nil
	}
	return c.AssignPhoneNumber(ctx, pn.ID, assistantID)
}

// FindNumber reports whether the platform knows number and which assistant it routes to.
func (c *Client) FindNumber(ctx context.Context, number string) (PhoneNumber, bool, error) {
	return c.findNumber(ctx, number)
}

func (c *Client) findNumber(ctx context.Context, number string) (PhoneNumber, bool, error) {
	nums, err := c.ListPhoneNumbers(ctx)
	if err != nil {
		return PhoneNumber{}, false, err
	}
	for _, n := range nums {
		if n.Number == number {
			return n, true, nil
		}
	}
	return PhoneNumber{}, false, nil
}

// CreateCall places an outbound call from the assistant to customerNumber.
func (c *Client) CreateCall(ctx context.Context, assistantID, phoneNumberID, customerNumber string) (Call, error) {
	req := callRequest{
		AssistantID:   assistantID,
		PhoneNumberID: phoneNumberID,
		Customer:      CallCustomer{Number: customerNumber},
	}
	var out Call
	_, err := c.do(ctx, "create_call", http.MethodPost, "/call", req, &out)
	return out, err
}

// safe runs an idempotent call under the retrier.
func (c *Client) safe(ctx context.Context, op string, call func() (int, error)) error {
	if c.Retrier == nil {
		_, err := call()
		return err
	}
	var lastErr error
	ok := <-c.Retrier.Retry(ctx, func(attempt int) (terminate bool) {
		status, err := call()
		lastErr = err
		if err == nil || !providers.ShouldRetry(err, status) {
			return true
		}
		c.log().Warn("vapi call failed, retrying", "op", op, "attempt", attempt, "status", status, "err", err)
		return false
	}, true)
	if !ok && lastErr == nil {
		lastErr = &APIError{Op: op, Err: errors.New("retries exhausted")}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (int, error) {
	if !c.Configured() {
		return 0, &APIError{Op: op, Err: domain.ErrNotConfigured}
	}
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, &APIError{Op: op, Err: err}
		}
		payload = b
	}

	// Older deployments expose the API under /v1; fall back to the bare path
	// on a 404 and remember which one answered.
	prefixes := []string{"/v1", ""}
	if c.unversioned.Load() {
		prefixes = []string{""}
	}
	var (
		status int
		err    error
	)
	for i, prefix := range prefixes {
		status, err = c.send(ctx, op, method, prefix+path, payload, out)
		if status != http.StatusNotFound || i == len(prefixes)-1 {
			if prefix == "" && status != http.StatusNotFound && status != 0 {
				c.unversioned.Store(true)
			}
			break
		}
	}
	return status, err
}

func (c *Client) send(ctx context.Context, op, method, path string, payload []byte, out any) (int, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = "https://api.vapi.ai"
	}
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, rd)
	if err != nil {
		return 0, &APIError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	start := time.Now()
	resp, err := hc.Do(req)
	observability.ProviderLatency.WithLabelValues("vapi").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ProviderCalls.WithLabelValues("vapi", op, "transport_error").Inc()
		return 0, &APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ProviderCalls.WithLabelValues("vapi", op, "http_"+strconv.Itoa(resp.StatusCode)).Inc()
		return resp.StatusCode, &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(b), 512)}
	}
	observability.ProviderCalls.WithLabelValues("vapi", op, "ok").Inc()
	if out != nil && len(b) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return resp.StatusCode, &APIError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func alreadyExists(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	if ae.Status == http.StatusConflict {
		return true
	}
	return ae.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(ae.Body), "already exist")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
