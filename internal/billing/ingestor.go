// Package billing consumes payment-processor events and stages checkouts.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"provisioner/internal/domain"
	"provisioner/internal/notify"
	"provisioner/internal/observability"
	"provisioner/internal/orders"
	"provisioner/internal/pending"
	"provisioner/internal/provisioning"
	"provisioner/internal/store"
	"provisioner/internal/util"
)

const defaultStaleAfter = 5 * time.Minute

// EventParser verifies a webhook signature and decodes the event.
type EventParser interface {
	Parse(payload []byte, header string) (domain.PaymentEvent, error)
}

type Store interface {
	ClaimEvent(ctx context.Context, in store.EventClaimRequest) (domain.EventClaim, error)
	FinishEvent(ctx context.Context, in store.EventResult) error
	UpsertCustomer(ctx context.Context, c domain.Customer) error
	UpdateSubscriptionStatus(ctx context.Context, in store.SubscriptionUpdate) (bool, error)
}

type FeeCharger interface {
	Configured() bool
	ChargeSetupFee(ctx context.Context, paymentCustomerID string, cents int64, description, idempotencyKey string) (string, error)
}

type Provisioner interface {
	Run(ctx context.Context, orderID string, opts provisioning.Options) (provisioning.Result, error)
}

type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

type Ack struct {
	Received bool `json:"received"`
	Skipped  bool `json:"skipped,omitempty"`
}

type Ingestor struct {
	Parser      EventParser
	Store       Store
	Bridge      *pending.Bridge
	Orders      *orders.Repository
	Fees        FeeCharger
	Notifier    Notifier
	Provisioner Provisioner
	// StaleAfter is how long a processing claim blocks redeliveries.
	StaleAfter time.Duration
	Now        func() time.Time
}

// Ingest verifies, claims and handles one webhook delivery. Each event id is
// handled to completion at most once; a failed attempt is retried on the
// processor's next delivery.
func (in *Ingestor) Ingest(ctx context.Context, payload []byte, signature string) (Ack, error) {
	ev, err := in.Parser.Parse(payload, signature)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidInput) {
			return Ack{}, err
		}
		slog.Warn("payment event not decodable; acknowledging", "err", err)
		observability.PaymentEvents.WithLabelValues("unknown", "undecodable").Inc()
		if ev == nil {
			return Ack{Received: true}, nil
		}
		// remember the id so redeliveries are skipped
		ev = domain.UnhandledEvent{EventMeta: domain.EventMeta{ID: ev.EventID(), Type: ev.EventType()}}
	}
	log := slog.With("event_id", ev.EventID(), "event_type", ev.EventType())

	claim, err := in.Store.ClaimEvent(ctx, store.EventClaimRequest{
		EventID:    ev.EventID(),
		EventType:  ev.EventType(),
		Now:        in.now(),
		StaleAfter: in.staleAfter(),
	})
	if err != nil {
		return Ack{}, fmt.Errorf("claim event %s: %w", ev.EventID(), err)
	}
	switch claim {
	case domain.ClaimCompleted:
		log.Info("payment event already processed")
		observability.PaymentEvents.WithLabelValues(ev.EventType(), "duplicate").Inc()
		return Ack{Received: true, Skipped: true}, nil
	case domain.ClaimInProgress:
		observability.PaymentEvents.WithLabelValues(ev.EventType(), "in_progress").Inc()
		return Ack{}, fmt.Errorf("%w: %s", domain.ErrEventInProgress, ev.EventID())
	}

	herr := in.dispatch(ctx, ev)

	res := store.EventResult{EventID: ev.EventID(), Status: domain.EventCompleted, Now: in.now()}
	if herr != nil {
		res.Status = domain.EventFailed
		res.Error = herr.Error()
	}
	// record the outcome even when the caller went away
	if err := in.Store.FinishEvent(context.WithoutCancel(ctx), res); err != nil {
		log.Error("recording payment event outcome failed", "err", err)
	}
	if herr != nil {
		log.Error("payment event handler failed", "err", herr)
		observability.PaymentEvents.WithLabelValues(ev.EventType(), "failed").Inc()
		return Ack{}, fmt.Errorf("handle %s: %w", ev.EventType(), herr)
	}
	observability.PaymentEvents.WithLabelValues(ev.EventType(), "ok").Inc()
	return Ack{Received: true}, nil
}

func (in *Ingestor) dispatch(ctx context.Context, ev domain.PaymentEvent) error {
	switch e := ev.(type) {
	case domain.CheckoutCompleted:
		return in.checkoutCompleted(ctx, e)
	case domain.SubscriptionChanged:
		status := domain.MapProviderStatus(e.ProviderStatus)
		if e.Deleted {
			status = domain.SubscriptionCancelled
		}
		return in.setSubscription(ctx, e.PaymentCustomerID, e.SubscriptionID, status, nil)
	case domain.InvoicePaid:
		return in.setSubscription(ctx, e.PaymentCustomerID, e.SubscriptionID, domain.SubscriptionActive,
			[]domain.SubscriptionStatus{domain.SubscriptionSuspended})
	case domain.InvoiceFailed:
		return in.setSubscription(ctx, e.PaymentCustomerID, e.SubscriptionID, domain.SubscriptionSuspended, nil)
	default:
		slog.Info("payment event type not handled", "event_id", ev.EventID(), "event_type", ev.EventType())
		return nil
	}
}

func (in *Ingestor) checkoutCompleted(ctx context.Context, ev domain.CheckoutCompleted) error {
	log := slog.With("event_id", ev.ID, "session_id", ev.SessionID, "customer_id", ev.CustomerID)
	if ev.CustomerID == "" || ev.PlanID == "" {
		log.Warn("checkout without user or plan metadata; ignoring")
		return nil
	}
	plan, known := domain.PlanByID(ev.PlanID)
	if !known {
		log.Warn("checkout for unknown plan", "plan", ev.PlanID)
	}

	if err := in.Store.UpsertCustomer(ctx, domain.Customer{
		ID:                ev.CustomerID,
		Name:              ev.CustomerName,
		Plan:              ev.PlanID,
		Status:            domain.SubscriptionActive,
		MonthlyCallsLimit: plan.MonthlyCallLimit,
		PaymentCustomerID: ev.PaymentCustomerID,
		SubscriptionID:    ev.SubscriptionID,
		UpdatedAt:         in.now(),
	}); err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}

	fee := ev.SetupFeeCents
	if fee == 0 {
		fee = plan.SetupFeeCents
	}
	in.chargeSetupFee(ctx, log, ev, fee)

	ord, ok, err := in.resolveOrder(ctx, log, ev)
	if err != nil || !ok {
		return err
	}

	res, err := in.Provisioner.Run(ctx, ord.ID, provisioning.Options{Actor: "auto-setup"})
	if err != nil {
		// the order is persisted; operators resume from the dashboard
		log.Error("auto-setup did not complete", "order_id", ord.ID, "err", err)
		return nil
	}
	log.Info("order provisioned", "order_id", ord.ID, "status", res.Status)
	return nil
}

// resolveOrder consumes the pending configuration into a new order or, on a
// redelivery, finds the order an earlier attempt created.
func (in *Ingestor) resolveOrder(ctx context.Context, log *slog.Logger, ev domain.CheckoutCompleted) (domain.Order, bool, error) {
	p, found, err := in.Bridge.Find(ctx, ev.PendingID, ev.CustomerID, ev.PaymentCustomerID)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("find pending config: %w", err)
	}
	if found {
		if p.CustomerName == "" {
			p.CustomerName = ev.CustomerName
		}
		ord, created, err := in.Bridge.Consume(ctx, p, ev.SessionID, ev.SubscriptionID)
		if err != nil {
			return domain.Order{}, false, err
		}
		if created {
			log.Info("order created", "order_id", ord.ID, "pending_id", p.ID)
			in.notify(ctx, log, notify.OrderConfirmed(ord))
			return ord, true, nil
		}
	}
	if ev.SessionID == "" {
		log.Warn("no pending configuration for checkout; subscription updated only")
		return domain.Order{}, false, nil
	}
	ord, exists, err := in.Orders.ByCheckoutSession(ctx, ev.SessionID)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("order by session: %w", err)
	}
	if !exists {
		log.Warn("no pending configuration for checkout; subscription updated only")
		return domain.Order{}, false, nil
	}
	log.Info("resuming existing order", "order_id", ord.ID)
	return ord, true, nil
}

func (in *Ingestor) chargeSetupFee(ctx context.Context, log *slog.Logger, ev domain.CheckoutCompleted, cents int64) {
	if cents <= 0 || ev.PaymentCustomerID == "" {
		return
	}
	if in.Fees == nil || !in.Fees.Configured() {
		log.Warn("billing not configured; setup fee not charged", "cents", cents)
		return
	}
	id, err := in.Fees.ChargeSetupFee(ctx, ev.PaymentCustomerID, cents,
		fmt.Sprintf("Setup fee - %s plan", ev.PlanID), "setup-fee-"+ev.SessionID)
	if err != nil {
		log.Error("setup fee charge failed", "cents", cents, "err", err)
		return
	}
	log.Info("setup fee charged", "invoice_item", id, "cents", cents)
}

func (in *Ingestor) setSubscription(ctx context.Context, paymentCustomerID, subscriptionID string, status domain.SubscriptionStatus, onlyFrom []domain.SubscriptionStatus) error {
	if paymentCustomerID == "" {
		slog.Warn("subscription event without customer", "subscription_id", subscriptionID)
		return nil
	}
	updated, err := in.Store.UpdateSubscriptionStatus(ctx, store.SubscriptionUpdate{
		PaymentCustomerID: paymentCustomerID,
		SubscriptionID:    subscriptionID,
		Status:            status,
		OnlyFrom:          onlyFrom,
		Now:               in.now(),
	})
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	slog.Info("subscription status", "payment_customer_id", paymentCustomerID, "status", status, "updated", updated)
	return nil
}

func (in *Ingestor) notify(ctx context.Context, log *slog.Logger, n domain.Notification) {
	if in.Notifier == nil {
		return
	}
	if err := in.Notifier.Send(ctx, n); err != nil {
		log.Warn("notification failed", "kind", n.Kind, "err", err)
	}
}

func (in *Ingestor) staleAfter() time.Duration {
	if in.StaleAfter <= 0 {
		return defaultStaleAfter
	}
	return in.StaleAfter
}

func (in *Ingestor) now() time.Time {
	if in.Now == nil {
		return util.NowUTC()
	}
	return in.Now()
}
