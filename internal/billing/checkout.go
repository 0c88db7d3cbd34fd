package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"provisioner/internal/domain"
	"provisioner/internal/pending"
	"provisioner/internal/providers/stripe"
)

type CheckoutAPI interface {
	Configured() bool
	EnsureCustomer(ctx context.Context, email, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, req stripe.CheckoutRequest) (stripe.CheckoutSession, error)
}

type CheckoutRequest struct {
	CustomerID   string             `json:"-"`
	CustomerName string             `json:"customer_name"`
	PlanID       string             `json:"plan" validate:"required,oneof=starter pro enterprise"`
	Config       domain.OrderConfig `json:"config"`
}

type CheckoutResult struct {
	PendingID string `json:"pending_id"`
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Checkout stages a customer's configuration and opens a processor checkout
// whose metadata points back at it.
type Checkout struct {
	API    CheckoutAPI
	Bridge *pending.Bridge
	// PriceIDs maps plan ids to processor price ids.
	PriceIDs   map[string]string
	SuccessURL string
	CancelURL  string

	validate *validator.Validate
}

func NewCheckout(api CheckoutAPI, b *pending.Bridge, prices map[string]string, successURL, cancelURL string) *Checkout {
	norm := make(map[string]string, len(prices))
	for k, v := range prices {
		norm[strings.ToLower(k)] = v
	}
	return &Checkout{API: api, Bridge: b, PriceIDs: norm, SuccessURL: successURL, CancelURL: cancelURL, validate: validator.New()}
}

func (c *Checkout) Start(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	if req.CustomerID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: customer identity required", domain.ErrForbidden)
	}
	if err := c.validator().Struct(req); err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if c.API == nil || !c.API.Configured() {
		return CheckoutResult{}, fmt.Errorf("billing: %w", domain.ErrNotConfigured)
	}
	price := c.PriceIDs[req.PlanID]
	if price == "" {
		return CheckoutResult{}, fmt.Errorf("price for plan %s: %w", req.PlanID, domain.ErrNotConfigured)
	}
	plan, _ := domain.PlanByID(req.PlanID)

	paymentCustomer, err := c.API.EnsureCustomer(ctx, req.CustomerID, req.CustomerName)
	if err != nil {
		return CheckoutResult{}, &providerError{op: "ensure_customer", err: err}
	}
	p, err := c.Bridge.Stage(ctx, domain.PendingConfig{
		CustomerID:        req.CustomerID,
		CustomerName:      req.CustomerName,
		PlanID:            req.PlanID,
		PaymentCustomerID: paymentCustomer,
		Config:            req.Config,
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	sess, err := c.API.CreateCheckoutSession(ctx, stripe.CheckoutRequest{
		PaymentCustomerID: paymentCustomer,
		PriceID:           price,
		CustomerID:        req.CustomerID,
		CustomerName:      req.CustomerName,
		PlanID:            req.PlanID,
		SetupFeeCents:     plan.SetupFeeCents,
		PendingID:         p.ID,
		SuccessURL:        c.SuccessURL,
		CancelURL:         c.CancelURL,
	})
	if err != nil {
		return CheckoutResult{}, &providerError{op: "create_checkout_session", err: err}
	}
	slog.Info("checkout staged", "customer_id", req.CustomerID, "pending_id", p.ID, "session_id", sess.ID)
	return CheckoutResult{PendingID: p.ID, SessionID: sess.ID, URL: sess.URL}, nil
}

func (c *Checkout) validator() *validator.Validate {
	if c.validate == nil {
		c.validate = validator.New()
	}
	return c.validate
}

type providerError struct {
	op  string
	err error
}

func (e *providerError) Error() string        { return "stripe " + e.op + ": " + e.err.Error() }
func (e *providerError) Unwrap() error        { return e.err }
func (e *providerError) Is(target error) bool { return target == domain.ErrProvider }
