package stripe

import (
	"context"
	"fmt"
	"strconv"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"provisioner/internal/domain"
)

// Billing wraps the processor calls made while staging a checkout and after
// it completes.
type Billing struct {
	api *client.API
}

func NewBilling(secretKey string) *Billing {
	if secretKey == "" {
		return &Billing{}
	}
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Billing{api: sc}
}

func (b *Billing) Configured() bool { return b != nil && b.api != nil }

// EnsureCustomer returns the processor customer for email, creating it when absent.
func (b *Billing) EnsureCustomer(ctx context.Context, email, name string) (string, error) {
	if !b.Configured() {
		return "", fmt.Errorf("billing: %w", domain.ErrNotConfigured)
	}
	lp := &stripego.CustomerListParams{Email: stripego.String(email)}
	lp.Context = ctx
	lp.Limit = stripego.Int64(1)
	it := b.api.Customers.List(lp)
	for it.Next() {
		return it.Customer().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("list customers: %w", err)
	}

	p := &stripego.CustomerParams{Email: stripego.String(email)}
	if name != "" {
		p.Name = stripego.String(name)
	}
	p.Context = ctx
	p.AddMetadata(metaUserID, email)
	c, err := b.api.Customers.New(p)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

type CheckoutRequest struct {
	PaymentCustomerID string
	PriceID           string
	CustomerID        string
	CustomerName      string
	PlanID            string
	SetupFeeCents     int64
	PendingID         string
	SuccessURL        string
	CancelURL         string
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession opens a subscription checkout. The metadata carries the
// identifiers the completion webhook needs to find the pending configuration.
func (b *Billing) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if !b.Configured() {
		return CheckoutSession{}, fmt.Errorf("billing: %w", domain.ErrNotConfigured)
	}
	p := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		Customer:   stripego.String(req.PaymentCustomerID),
		SuccessURL: stripego.String(req.SuccessURL),
		CancelURL:  stripego.String(req.CancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{Price: stripego.String(req.PriceID), Quantity: stripego.Int64(1)},
		},
		SubscriptionData: &stripego.CheckoutSessionSubscriptionDataParams{},
	}
	p.Context = ctx
	meta := map[string]string{
		metaUserID:    req.CustomerID,
		metaUserName:  req.CustomerName,
		metaPlan:      req.PlanID,
		metaSetupFee:  formatFee(req.SetupFeeCents),
		metaPendingID: req.PendingID,
	}
	for k, v := range meta {
		p.AddMetadata(k, v)
	}
	p.SubscriptionData.AddMetadata(metaPlan, req.PlanID)
	p.SubscriptionData.AddMetadata(metaUserID, req.CustomerID)

	s, err := b.api.CheckoutSessions.New(p)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	return CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// ChargeSetupFee adds a one-off euro invoice item to the customer's next
// invoice. Calls sharing idempotencyKey create a single item.
func (b *Billing) ChargeSetupFee(ctx context.Context, paymentCustomerID string, cents int64, description, idempotencyKey string) (string, error) {
	if !b.Configured() {
		return "", fmt.Errorf("billing: %w", domain.ErrNotConfigured)
	}
	p := &stripego.InvoiceItemParams{
		Customer:    stripego.String(paymentCustomerID),
		Amount:      stripego.Int64(cents),
		Currency:    stripego.String(string(stripego.CurrencyEUR)),
		Description: stripego.String(description),
	}
	p.Context = ctx
	if idempotencyKey != "" {
		p.SetIdempotencyKey(idempotencyKey)
	}
	item, err := b.api.InvoiceItems.New(p)
	if err != nil {
		return "", fmt.Errorf("create setup fee item: %w", err)
	}
	return item.ID, nil
}

func formatFee(cents int64) string {
	if cents <= 0 {
		return "0"
	}
	return strconv.FormatFloat(float64(cents)/100, 'f', 2, 64)
}
