package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"provisioner/internal/billing"
	"provisioner/internal/domain"
)

type PaymentIngestor interface {
	Ingest(ctx context.Context, payload []byte, signature string) (billing.Ack, error)
}

type Webhook struct {
	Ingestor PaymentIngestor
}

func (wh *Webhook) Register(m *mux.Router) {
	m.HandleFunc("/v1/webhooks/payments", wh.handlePayment).Methods(http.MethodPost)
}

func (wh *Webhook) handlePayment(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	ack, err := wh.Ingestor.Ingest(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ack)
	case errors.Is(err, domain.ErrInvalidSignature):
		slog.Warn("payment webhook signature rejected", "err", err)
		http.Error(w, ErrInvalidSignature, http.StatusBadRequest)
	case errors.Is(err, domain.ErrEventInProgress):
		http.Error(w, "event is being processed", http.StatusConflict)
	case errors.Is(err, domain.ErrNotConfigured):
		slog.Error("payment webhook received but not configured", "err", err)
		http.Error(w, ErrUnavailable, http.StatusServiceUnavailable)
	default:
		slog.Error("payment webhook failed", "err", err)
		http.Error(w, ErrInternal, http.StatusInternalServerError)
	}
}
