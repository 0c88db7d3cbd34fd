package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

// checkoutRequest describes the checkout the mock pretends a customer finished.
type checkoutRequest struct {
	CustomerID        string `json:"customer_id"`
	CustomerName      string `json:"customer_name"`
	Plan              string `json:"plan"`
	PendingID         string `json:"pending_id"`
	SetupFee          string `json:"setup_fee"`
	PaymentCustomerID string `json:"payment_customer_id"`
	// Deliveries above 1 resend the same event to exercise deduplication.
	Deliveries int `json:"deliveries"`
}

type deliveryResult struct {
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id"`
	Statuses  []int  `json:"statuses"`
	Error     string `json:"error,omitempty"`
}

func (s *server) handleCheckoutCompleted(w http.ResponseWriter, r *http.Request) {
	var in checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.CustomerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "customer_id is required"})
		return
	}
	if in.Plan == "" {
		in.Plan = "starter"
	}
	if in.PaymentCustomerID == "" {
		in.PaymentCustomerID = "cus_" + ulid.Make().String()
	}
	if in.Deliveries <= 0 {
		in.Deliveries = 1
	}

	eventID := "evt_" + ulid.Make().String()
	sessionID := "cs_" + ulid.Make().String()
	payload, err := checkoutEvent(eventID, sessionID, in)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	res := deliveryResult{EventID: eventID, SessionID: sessionID}
	for i := 0; i < in.Deliveries; i++ {
		status, err := s.postWebhookWithRetry(r.Context(), s.cfg.WebhookURL, payload)
		res.Statuses = append(res.Statuses, status)
		if err != nil {
			res.Error = err.Error()
			break
		}
	}
	code := http.StatusOK
	if res.Error != "" {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, res)
}

func checkoutEvent(eventID, sessionID string, in checkoutRequest) ([]byte, error) {
	metadata := map[string]string{
		"user_id":           in.CustomerID,
		"subscription_plan": in.Plan,
	}
	if in.CustomerName != "" {
		metadata["user_name"] = in.CustomerName
	}
	if in.PendingID != "" {
		metadata["pending_checkout_id"] = in.PendingID
	}
	if in.SetupFee != "" {
		metadata["setup_fee"] = in.SetupFee
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        "checkout.session.completed",
		"api_version": "2023-10-16",
		"created":     time.Now().Unix(),
		"data": map[string]any{"object": map[string]any{
			"id":           sessionID,
			"object":       "checkout.session",
			"customer":     in.PaymentCustomerID,
			"subscription": "sub_" + ulid.Make().String(),
			"metadata":     metadata,
		}},
	})
}

// stripeSignature builds a Stripe-Signature header for payload.
func stripeSignature(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

// postWebhookWithRetry delivers payload, retrying on transport errors and
// retryable statuses. Each attempt is signed afresh.
func (s *server) postWebhookWithRetry(ctx context.Context, callbackURL string, payload []byte) (int, error) {
	maxAttempts := s.cfg.WebhookMaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(payload))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Stripe-Signature", stripeSignature(s.cfg.StripeWebhookSecret, payload, time.Now()))

		resp, err := s.client.Do(req)
		status := 0
		retryAfter := time.Duration(0)
		if resp != nil {
			status = resp.StatusCode
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			_ = resp.Body.Close()
		}
		if err == nil && status >= 200 && status < 300 {
			return status, nil
		}

		if attempt == maxAttempts-1 {
			if err != nil {
				slog.Error("mock webhook post failed", "url", callbackURL, "attempt", attempt+1, "err", err)
				return status, err
			}
			slog.Error("mock webhook post failed", "url", callbackURL, "attempt", attempt+1, "status", status)
			return status, fmt.Errorf("webhook post failed: status=%d", status)
		}
		if err == nil && !isRetryableStatus(status) {
			slog.Error("mock webhook post non-retryable", "url", callbackURL, "attempt", attempt+1, "status", status)
			return status, fmt.Errorf("webhook post non-retryable: status=%d", status)
		}

		wait := retryAfter
		if wait <= 0 {
			wait = s.retryBackoff(attempt)
		}
		slog.Warn("mock webhook post retrying", "url", callbackURL, "attempt", attempt+1, "status", status, "wait_ms", wait.Milliseconds())
		s.sleep(wait)
	}
	return 0, nil
}
