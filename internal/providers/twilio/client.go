// Package twilio talks to the carrier REST API to search and purchase voice numbers.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"provisioner/internal/domain"
	"provisioner/internal/observability"
	"provisioner/internal/providers"
)

var ErrNumberNotFound = errors.New("twilio: number not found")

type Client struct {
	AccountSID string
	AuthToken  string
	HTTP       *http.Client
	BaseURL    string
}

type AvailableNumber struct {
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
	Locality     string `json:"locality"`
	Region       string `json:"region"`
	ISOCountry   string `json:"iso_country"`
}

type IncomingNumber struct {
	Sid          string `json:"sid"`
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
	VoiceURL     string `json:"voice_url"`
	Status       string `json:"status"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) Configured() bool {
	return c != nil && c.AccountSID != "" && c.AuthToken != ""
}

// SearchAvailable lists local numbers with voice and SMS capability.
func (c *Client) SearchAvailable(ctx context.Context, country string, limit int) ([]AvailableNumber, int, []byte, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("VoiceEnabled", "true")
	q.Set("SmsEnabled", "true")
	q.Set("PageSize", strconv.Itoa(limit))
	path := "/AvailablePhoneNumbers/" + strings.ToUpper(country) + "/Local.json?" + q.Encode()

	var out struct {
		Numbers []AvailableNumber `json:"available_phone_numbers"`
	}
	status, raw, err := c.do(ctx, "search_numbers", http.MethodGet, path, nil, &out)
	return out.Numbers, status, raw, err
}

// PurchaseNumber buys a specific number. Not idempotent on the carrier side.
func (c *Client) PurchaseNumber(ctx context.Context, phoneNumber, friendlyName string) (IncomingNumber, int, []byte, error) {
	form := url.Values{}
	form.Set("PhoneNumber", phoneNumber)
	if friendlyName != "" {
		form.Set("FriendlyName", friendlyName)
	}
	var out IncomingNumber
	status, raw, err := c.do(ctx, "purchase_number", http.MethodPost, "/IncomingPhoneNumbers.json", form, &out)
	return out, status, raw, err
}

func (c *Client) GetNumber(ctx context.Context, sid string) (IncomingNumber, int, []byte, error) {
	var out IncomingNumber
	status, raw, err := c.do(ctx, "get_number", http.MethodGet, "/IncomingPhoneNumbers/"+url.PathEscape(sid)+".json", nil, &out)
	if status == http.StatusNotFound {
		return out, status, raw, ErrNumberNotFound
	}
	return out, status, raw, err
}

func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, out any) (int, []byte, error) {
	if !c.Configured() {
		return 0, nil, fmt.Errorf("twilio: %w", domain.ErrNotConfigured)
	}
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	endpoint := baseURL + "/2010-04-01/Accounts/" + c.AccountSID + path

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	if form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	httpReq.SetBasicAuth(c.AccountSID, c.AuthToken)

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	start := time.Now()
	resp, err := hc.Do(httpReq)
	observability.ProviderLatency.WithLabelValues("twilio").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ProviderCalls.WithLabelValues("twilio", op, "transport_error").Inc()
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	// Twilio returns 201 for created; treat 2xx as success
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ProviderCalls.WithLabelValues("twilio", op, "http_"+strconv.Itoa(resp.StatusCode)).Inc()
		var ae apiError
		if json.Unmarshal(b, &ae) == nil && ae.Message != "" {
			return resp.StatusCode, b, fmt.Errorf("twilio %s: %s (code %d)", op, ae.Message, ae.Code)
		}
		return resp.StatusCode, b, fmt.Errorf("twilio %s failed with status %d", op, resp.StatusCode)
	}
	observability.ProviderCalls.WithLabelValues("twilio", op, "ok").Inc()
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return resp.StatusCode, b, fmt.Errorf("twilio %s: decode response: %w", op, err)
		}
	}
	return resp.StatusCode, b, nil
}

// Retry decision for transient errors
func ShouldRetry(err error, httpStatus int) bool { return providers.ShouldRetry(err, httpStatus) }
