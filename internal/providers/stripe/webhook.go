// Package stripe adapts the payment processor SDK: webhook verification into
// domain.PaymentEvent and the billing calls made at checkout.
package stripe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"provisioner/internal/domain"
)

const (
	metaUserID    = "user_id"
	metaUserName  = "user_name"
	metaPlan      = "subscription_plan"
	metaSetupFee  = "setup_fee"
	metaPendingID = "pending_checkout_id"
)

type Verifier struct {
	Secret string
}

// Parse verifies the signature header and converts the event. A payload whose
// object cannot be decoded yields an error wrapping domain.ErrInvalidInput,
// returned together with an UnhandledEvent carrying the event id.
func (v Verifier) Parse(payload []byte, header string) (domain.PaymentEvent, error) {
	if v.Secret == "" {
		return nil, fmt.Errorf("payment webhook secret: %w", domain.ErrNotConfigured)
	}
	if header == "" {
		return nil, fmt.Errorf("%w: missing signature header", domain.ErrInvalidSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, header, v.Secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return Convert(ev, payload)
}

// Convert maps a verified event onto the closed event set.
func Convert(ev stripego.Event, payload []byte) (domain.PaymentEvent, error) {
	meta := domain.EventMeta{ID: ev.ID, Type: string(ev.Type)}
	if meta.ID == "" {
		sum := sha256.Sum256(payload)
		meta.ID = "hash:" + hex.EncodeToString(sum[:])
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return domain.UnhandledEvent{EventMeta: meta}, nil
	}

	switch meta.Type {
	case "checkout.session.completed":
		var s stripego.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return domain.UnhandledEvent{EventMeta: meta}, fmt.Errorf("%w: checkout session: %v", domain.ErrInvalidInput, err)
		}
		out := domain.CheckoutCompleted{
			EventMeta:     meta,
			SessionID:     s.ID,
			CustomerID:    s.Metadata[metaUserID],
			CustomerName:  s.Metadata[metaUserName],
			PlanID:        s.Metadata[metaPlan],
			PendingID:     s.Metadata[metaPendingID],
			SetupFeeCents: parseFee(s.Metadata[metaSetupFee]),
		}
		if s.Customer != nil {
			out.PaymentCustomerID = s.Customer.ID
		}
		if s.Subscription != nil {
			out.SubscriptionID = s.Subscription.ID
		}
		if out.CustomerName == "" && s.CustomerDetails != nil {
			out.CustomerName = s.CustomerDetails.Name
		}
		return out, nil

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripego.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return domain.UnhandledEvent{EventMeta: meta}, fmt.Errorf("%w: subscription: %v", domain.ErrInvalidInput, err)
		}
		out := domain.SubscriptionChanged{
			EventMeta:      meta,
			SubscriptionID: sub.ID,
			PlanID:         sub.Metadata[metaPlan],
			ProviderStatus: string(sub.Status),
			Deleted:        meta.Type == "customer.subscription.deleted",
		}
		if sub.Customer != nil {
			out.PaymentCustomerID = sub.Customer.ID
		}
		return out, nil

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripego.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return domain.UnhandledEvent{EventMeta: meta}, fmt.Errorf("%w: invoice: %v", domain.ErrInvalidInput, err)
		}
		var customerID, subID string
		if inv.Customer != nil {
			customerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			subID = inv.Subscription.ID
		}
		if meta.Type == "invoice.payment_failed" {
			return domain.InvoiceFailed{EventMeta: meta, InvoiceID: inv.ID, PaymentCustomerID: customerID, SubscriptionID: subID}, nil
		}
		return domain.InvoicePaid{EventMeta: meta, InvoiceID: inv.ID, PaymentCustomerID: customerID, SubscriptionID: subID}, nil
	}
	return domain.UnhandledEvent{EventMeta: meta}, nil
}

// parseFee reads a decimal euro amount ("149" or "149.00") as cents.
func parseFee(v string) int64 {
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return int64(math.Round(f * 100))
}
