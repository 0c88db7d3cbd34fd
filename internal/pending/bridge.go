// Package pending holds a customer's order configuration between checkout
// staging and payment confirmation.
package pending

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"provisioner/internal/domain"
	"provisioner/internal/util"
)

type Store interface {
	InsertPending(ctx context.Context, p domain.PendingConfig) error
	GetPending(ctx context.Context, id string) (domain.PendingConfig, bool, error)
	FindLatestPending(ctx context.Context, customerID, paymentCustomerID string) (domain.PendingConfig, bool, error)
	// ConsumePending deletes the pending row and inserts o in one step.
	// created is false when the row was already consumed or an order for the
	// same checkout session exists.
	ConsumePending(ctx context.Context, pendingID string, o domain.Order) (created bool, err error)
}

type Bridge struct {
	Store    Store
	Now      func() time.Time
	validate *validator.Validate
}

func New(s Store) *Bridge {
	return &Bridge{Store: s, Now: util.NowUTC, validate: validator.New()}
}

// Stage validates and stores a configuration, returning it with id and timestamp set.
func (b *Bridge) Stage(ctx context.Context, p domain.PendingConfig) (domain.PendingConfig, error) {
	if p.CustomerID == "" {
		return domain.PendingConfig{}, fmt.Errorf("%w: customer id required", domain.ErrInvalidInput)
	}
	plan, ok := domain.PlanByID(p.PlanID)
	if !ok {
		return domain.PendingConfig{}, fmt.Errorf("%w: unknown plan %q", domain.ErrInvalidInput, p.PlanID)
	}
	if err := b.validator().Struct(p.Config); err != nil {
		return domain.PendingConfig{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if n := len(p.Config.Channels); n > plan.MaxChannels {
		return domain.PendingConfig{}, fmt.Errorf("%w: plan %s allows %d channels, got %d", domain.ErrInvalidInput, plan.ID, plan.MaxChannels, n)
	}
	if p.ID == "" {
		p.ID = util.NewPendingID()
	}
	p.CreatedAt = b.now()
	if err := b.Store.InsertPending(ctx, p); err != nil {
		return domain.PendingConfig{}, fmt.Errorf("stage pending config: %w", err)
	}
	return p, nil
}

// Find resolves the configuration for a completed checkout: by the id carried
// in the checkout metadata, else the newest one for the customer pair.
func (b *Bridge) Find(ctx context.Context, pendingID, customerID, paymentCustomerID string) (domain.PendingConfig, bool, error) {
	if pendingID != "" {
		p, found, err := b.Store.GetPending(ctx, pendingID)
		if err != nil {
			return domain.PendingConfig{}, false, err
		}
		if found {
			return p, true, nil
		}
	}
	if customerID == "" {
		return domain.PendingConfig{}, false, nil
	}
	return b.Store.FindLatestPending(ctx, customerID, paymentCustomerID)
}

// Consume turns p into a pending_setup order. A false created means another
// delivery already consumed it; the caller should look the order up by session.
func (b *Bridge) Consume(ctx context.Context, p domain.PendingConfig, checkoutSessionID, subscriptionID string) (domain.Order, bool, error) {
	o := p.NewOrder(util.NewOrderID(), checkoutSessionID, subscriptionID, b.now())
	created, err := b.Store.ConsumePending(ctx, p.ID, o)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("consume pending config %s: %w", p.ID, err)
	}
	return o, created, nil
}

func (b *Bridge) now() time.Time {
	if b.Now == nil {
		return util.NowUTC()
	}
	return b.Now()
}

func (b *Bridge) validator() *validator.Validate {
	if b.validate == nil {
		b.validate = validator.New()
	}
	return b.validate
}
