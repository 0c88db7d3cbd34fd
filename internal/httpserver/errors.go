package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"provisioner/internal/domain"
)

const (
	ErrInvalidJSON      = "invalid json"
	ErrMissingID        = "missing id"
	ErrNotFound         = "not found"
	ErrInvalidSignature = "invalid signature"
	ErrUnauthorized     = "unauthorized"
	ErrForbidden        = "forbidden"
	ErrBadRequest       = "request cannot be completed"
	ErrConflict         = "request conflicts with current state"
	ErrUnavailable      = "service temporarily unavailable"
	ErrDependency       = "dependency error"
	ErrInternal         = "internal error"
)

type errorBody struct {
	Error string `json:"error"`
}

// statusFor is the single mapping from domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrPrecondition):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrOrderBusy), errors.Is(err, domain.ErrEventInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrProvider), errors.Is(err, domain.ErrOutcomeUnknown):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers operators with the error text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		slog.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeCustomerError answers customers with a constant message only.
func writeCustomerError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		slog.Error("customer request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		slog.Info("customer request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: customerMessage(status)})
}

func customerMessage(status int) string {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusConflict:
		return ErrConflict
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return ErrUnavailable
	default:
		return ErrInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
