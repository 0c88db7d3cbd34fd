package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"provisioner/internal/domain"
	"provisioner/internal/provisioning"
)

type OrderReader interface {
	Get(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context, statuses ...domain.Status) ([]domain.Order, error)
	Current(ctx context.Context, customerID string) (domain.Order, error)
}

// Overrides are the operator entry points into provisioning.
type Overrides interface {
	ConfigureAgent(ctx context.Context, id string, opts provisioning.Options) (domain.Order, error)
	PurchaseNumber(ctx context.Context, id string) (domain.Order, error)
	AttachNumber(ctx context.Context, id, number, sid string) (domain.Order, error)
	Verify(ctx context.Context, id, actor string) (provisioning.VerifyResult, error)
	AutoSetup(ctx context.Context, id string, opts provisioning.Options) (provisioning.Result, error)
	Activate(ctx context.Context, id, actor string) (domain.Order, error)
	GoLive(ctx context.Context, id, actor string) (domain.Order, error)
	Suspend(ctx context.Context, id, actor string) (domain.Order, error)
	Resume(ctx context.Context, id, actor string) (domain.Order, error)
}

type Operator struct {
	Orders     OrderReader
	Service    Overrides
	Tokens     map[string]string
	Configured func() map[string]bool

	validate *validator.Validate
}

type attachNumberRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	SID         string `json:"sid"`
}

func (o *Operator) Register(m *mux.Router) {
	o.validate = validator.New()
	admin := m.PathPrefix("/v1/admin").Subrouter()
	admin.Use(OperatorAuth(o.Tokens))

	admin.HandleFunc("/system", o.handleSystem).Methods(http.MethodGet)
	admin.HandleFunc("/orders", o.handleList).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}", o.handleGet).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}/agent", o.handleConfigureAgent).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/number/purchase", o.handlePurchaseNumber).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/number", o.handleAttachNumber).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/verify", o.handleVerify).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/auto-setup", o.handleAutoSetup).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/activate", o.transition(o.Service.Activate)).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/go-live", o.transition(o.Service.GoLive)).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/suspend", o.transition(o.Service.Suspend)).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/resume", o.transition(o.Service.Resume)).Methods(http.MethodPost)
}

func (o *Operator) handleSystem(w http.ResponseWriter, r *http.Request) {
	status := map[string]bool{}
	if o.Configured != nil {
		status = o.Configured()
	}
	writeJSON(w, http.StatusOK, map[string]any{"configured": status})
}

func (o *Operator) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, err := domain.ParseStatus(strings.TrimSpace(s))
			if err != nil {
				writeError(w, r, err)
				return
			}
			statuses = append(statuses, st)
		}
	}
	list, err := o.Orders.List(r.Context(), statuses...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (o *Operator) handleGet(w http.ResponseWriter, r *http.Request) {
	ord, err := o.Orders.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

func (o *Operator) handleConfigureAgent(w http.ResponseWriter, r *http.Request) {
	var opts provisioning.Options
	if !o.decodeOptional(w, r, &opts) {
		return
	}
	opts.Actor = operatorFrom(r.Context())
	ord, err := o.Service.ConfigureAgent(r.Context(), mux.Vars(r)["id"], opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent_id": ord.AgentID, "order": ord})
}

func (o *Operator) handlePurchaseNumber(w http.ResponseWriter, r *http.Request) {
	ord, err := o.Service.PurchaseNumber(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phone_number": ord.PhoneNumber, "sid": ord.PhoneNumberSID})
}

func (o *Operator) handleAttachNumber(w http.ResponseWriter, r *http.Request) {
	var req attachNumberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ErrInvalidJSON})
		return
	}
	if err := o.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	ord, err := o.Service.AttachNumber(r.Context(), mux.Vars(r)["id"], req.PhoneNumber, req.SID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

func (o *Operator) handleVerify(w http.ResponseWriter, r *http.Request) {
	res, err := o.Service.Verify(r.Context(), mux.Vars(r)["id"], operatorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (o *Operator) handleAutoSetup(w http.ResponseWriter, r *http.Request) {
	var opts provisioning.Options
	if !o.decodeOptional(w, r, &opts) {
		return
	}
	opts.Actor = operatorFrom(r.Context())
	res, err := o.Service.AutoSetup(r.Context(), mux.Vars(r)["id"], opts)
	if err != nil {
		status := statusFor(err)
		var stepErr *provisioning.StepError
		body := map[string]any{"error": err.Error(), "result": res}
		if errors.As(err, &stepErr) {
			body["step"] = stepErr.Step
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (o *Operator) transition(op func(ctx context.Context, id, actor string) (domain.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ord, err := op(r.Context(), mux.Vars(r)["id"], operatorFrom(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ord)
	}
}

// decodeOptional accepts an empty body.
func (o *Operator) decodeOptional(w http.ResponseWriter, r *http.Request, opts *provisioning.Options) bool {
	if err := decodeJSON(w, r, opts); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ErrInvalidJSON})
		return false
	}
	if err := o.validate.Struct(opts); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return false
	}
	return true
}
