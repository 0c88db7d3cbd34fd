package httpserver

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"provisioner/internal/billing"
	"provisioner/internal/domain"
	"provisioner/internal/providers/vapi"
)

type CustomerActions interface {
	ConfirmForwarding(ctx context.Context, id, customerID string) (domain.Order, error)
	TestCall(ctx context.Context, id, customerID string) (vapi.Call, error)
}

type CheckoutStarter interface {
	Start(ctx context.Context, req billing.CheckoutRequest) (billing.CheckoutResult, error)
}

type Customer struct {
	Orders   OrderReader
	Actions  CustomerActions
	Checkout CheckoutStarter
}

func (c *Customer) Register(m *mux.Router) {
	m.Handle("/v1/orders/current", CustomerAuth(http.HandlerFunc(c.handleCurrent))).Methods(http.MethodGet)
	m.Handle("/v1/orders/{id}/forwarding", CustomerAuth(http.HandlerFunc(c.handleForwarding))).Methods(http.MethodPost)
	m.Handle("/v1/orders/{id}/test-call", CustomerAuth(http.HandlerFunc(c.handleTestCall))).Methods(http.MethodPost)
	m.Handle("/v1/checkout", CustomerAuth(http.HandlerFunc(c.handleCheckout))).Methods(http.MethodPost)
}

func (c *Customer) handleCurrent(w http.ResponseWriter, r *http.Request) {
	ord, err := c.Orders.Current(r.Context(), customerFrom(r.Context()))
	if err != nil {
		writeCustomerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ord.CustomerView())
}

func (c *Customer) handleForwarding(w http.ResponseWriter, r *http.Request) {
	ord, err := c.Actions.ConfirmForwarding(r.Context(), mux.Vars(r)["id"], customerFrom(r.Context()))
	if err != nil {
		writeCustomerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ord.CustomerView())
}

func (c *Customer) handleTestCall(w http.ResponseWriter, r *http.Request) {
	call, err := c.Actions.TestCall(r.Context(), mux.Vars(r)["id"], customerFrom(r.Context()))
	if err != nil {
		writeCustomerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"call_id": call.ID, "status": call.Status})
}

func (c *Customer) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req billing.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ErrInvalidJSON})
		return
	}
	req.CustomerID = customerFrom(r.Context())
	res, err := c.Checkout.Start(r.Context(), req)
	if err != nil {
		writeCustomerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
