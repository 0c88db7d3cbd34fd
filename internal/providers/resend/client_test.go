package resend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"provisioner/internal/domain"
)

func TestSendUsesDefaultSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" || r.Header.Get("Authorization") != "Bearer re_key" {
			t.Fatalf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		var body SendRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.From != "noreply@example.com" || len(body.To) != 1 {
			t.Fatalf("unexpected body %+v", body)
		}
		_, _ = w.Write([]byte(`{"id":"em_1"}`))
	}))
	defer srv.Close()

	c := &Client{APIKey: "re_key", From: "noreply@example.com", BaseURL: srv.URL, HTTP: srv.Client()}
	out, status, _, err := c.Send(context.Background(), SendRequest{To: []string{"mario@example.com"}, Subject: "Ciao", HTML: "<p>x</p>"})
	if err != nil || status != 200 || out.ID != "em_1" {
		t.Fatalf("send: out=%+v status=%d err=%v", out, status, err)
	}
}

func TestSendSurfacesProviderMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"validation_error","message":"Invalid to field"}`))
	}))
	defer srv.Close()

	c := &Client{APIKey: "re_key", BaseURL: srv.URL, HTTP: srv.Client()}
	_, status, _, err := c.Send(context.Background(), SendRequest{To: []string{"bad"}})
	if err == nil || err.Error() != "Invalid to field" || status != 422 {
		t.Fatalf("expected provider message, got status=%d err=%v", status, err)
	}
}

func TestSendWithoutKey(t *testing.T) {
	var c *Client
	if _, _, _, err := c.Send(context.Background(), SendRequest{}); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
