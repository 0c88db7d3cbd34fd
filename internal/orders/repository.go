// Package orders owns the Order lifecycle. Every setup_status change goes
// through Repository so edge legality, resource requirements and timeline
// stamps are enforced in one place.
package orders

import (
	"context"
	"fmt"
	"time"

	"provisioner/internal/domain"
	"provisioner/internal/store"
	"provisioner/internal/util"
)

type Store interface {
	GetOrder(ctx context.Context, id string) (domain.Order, bool, error)
	GetOrderByCheckoutSession(ctx context.Context, sessionID string) (domain.Order, bool, error)
	ListOrders(ctx context.Context, statuses []domain.Status) ([]domain.Order, error)
	ListCustomerOrders(ctx context.Context, customerID string) ([]domain.Order, error)
	SetAgent(ctx context.Context, in store.AgentUpdate) error
	SetNumber(ctx context.Context, in store.NumberUpdate) error
	SetForwarding(ctx context.Context, id string, confirmed bool, now time.Time) error
	SetVerification(ctx context.Context, id string, v domain.Verification, now time.Time) error
	ChangeStatus(ctx context.Context, in store.StatusChange) (bool, error)
}

type Repository struct {
	Store Store
	Now   func() time.Time
}

func New(s Store) *Repository {
	return &Repository{Store: s, Now: util.NowUTC}
}

func (r *Repository) now() time.Time {
	if r.Now == nil {
		return util.NowUTC()
	}
	return r.Now()
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	o, found, err := r.Store.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !found {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

func (r *Repository) ByCheckoutSession(ctx context.Context, sessionID string) (domain.Order, bool, error) {
	return r.Store.GetOrderByCheckoutSession(ctx, sessionID)
}

// List returns orders in the given statuses, oldest first. With no statuses it
// returns the orders an operator still has to act on.
func (r *Repository) List(ctx context.Context, statuses ...domain.Status) ([]domain.Order, error) {
	if len(statuses) == 0 {
		statuses = domain.OpenStatuses
	}
	return r.Store.ListOrders(ctx, statuses)
}

func (r *Repository) ForCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return r.Store.ListCustomerOrders(ctx, customerID)
}

// Current is the customer's most recent order.
func (r *Repository) Current(ctx context.Context, customerID string) (domain.Order, error) {
	list, err := r.Store.ListCustomerOrders(ctx, customerID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(list) == 0 {
		return domain.Order{}, fmt.Errorf("no order for %s: %w", customerID, domain.ErrNotFound)
	}
	return list[0], nil
}

func (r *Repository) AttachAgent(ctx context.Context, id, agentID string, cfg domain.AgentConfig) (domain.Order, error) {
	if agentID == "" {
		return domain.Order{}, fmt.Errorf("%w: empty agent id", domain.ErrInvalidInput)
	}
	if err := r.Store.SetAgent(ctx, store.AgentUpdate{OrderID: id, AgentID: agentID, Config: cfg, Now: r.now()}); err != nil {
		return domain.Order{}, fmt.Errorf("persist agent: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *Repository) AttachNumber(ctx context.Context, id, number, sid string) (domain.Order, error) {
	if number == "" {
		return domain.Order{}, fmt.Errorf("%w: empty phone number", domain.ErrInvalidInput)
	}
	if err := r.Store.SetNumber(ctx, store.NumberUpdate{OrderID: id, Number: number, SID: sid, Now: r.now()}); err != nil {
		return domain.Order{}, fmt.Errorf("persist number: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *Repository) ConfirmForwarding(ctx context.Context, id string) (domain.Order, error) {
	if err := r.Store.SetForwarding(ctx, id, true, r.now()); err != nil {
		return domain.Order{}, fmt.Errorf("persist forwarding: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *Repository) RecordVerification(ctx context.Context, id string, v domain.Verification) (domain.Order, error) {
	if err := r.Store.SetVerification(ctx, id, v, r.now()); err != nil {
		return domain.Order{}, fmt.Errorf("persist verification: %w", err)
	}
	return r.Get(ctx, id)
}

// Advance performs a single transition. changed is false when the order was
// already in the target status, including when a concurrent writer got there first.
func (r *Repository) Advance(ctx context.Context, id string, to domain.Status, actor string) (domain.Order, bool, error) {
	o, err := r.Get(ctx, id)
	if err != nil {
		return domain.Order{}, false, err
	}
	if o.Status == to {
		return o, false, nil
	}
	if err := domain.CheckTransition(o, to); err != nil {
		return o, false, err
	}
	return r.swap(ctx, o, to, actor)
}

// AdvanceTo walks the forward edges until the order reaches target. changed
// reports whether this call performed the final transition into target.
func (r *Repository) AdvanceTo(ctx context.Context, id string, target domain.Status, actor string) (domain.Order, bool, error) {
	o, err := r.Get(ctx, id)
	if err != nil {
		return domain.Order{}, false, err
	}
	changed := false
	for o.Status != target {
		if domain.Reached(o.Status, target) {
			return o, false, nil
		}
		next, ok := domain.NextTowards(o.Status, target)
		if !ok {
			return o, false, fmt.Errorf("%w: %s cannot reach %s", domain.ErrIllegalTransition, o.Status, target)
		}
		if err := domain.CheckTransition(o, next); err != nil {
			return o, false, err
		}
		o, changed, err = r.swap(ctx, o, next, actor)
		if err != nil {
			return o, false, err
		}
	}
	return o, changed, nil
}

func (r *Repository) Suspend(ctx context.Context, id, actor string) (domain.Order, bool, error) {
	return r.Advance(ctx, id, domain.StatusSuspended, actor)
}

// Resume is the operator override out of suspended; the target is derived from
// the resources the order already holds.
func (r *Repository) Resume(ctx context.Context, id, actor string) (domain.Order, bool, error) {
	o, err := r.Get(ctx, id)
	if err != nil {
		return domain.Order{}, false, err
	}
	if o.Status != domain.StatusSuspended {
		return o, false, fmt.Errorf("%w: order is %s, not suspended", domain.ErrIllegalTransition, o.Status)
	}
	return r.swap(ctx, o, domain.ResumeTarget(o), actor)
}

func (r *Repository) swap(ctx context.Context, o domain.Order, to domain.Status, actor string) (domain.Order, bool, error) {
	ok, err := r.Store.ChangeStatus(ctx, store.StatusChange{
		OrderID: o.ID, From: o.Status, To: to, Actor: actor, Now: r.now(),
	})
	if err != nil {
		return o, false, fmt.Errorf("change status: %w", err)
	}
	fresh, gerr := r.Get(ctx, o.ID)
	if gerr != nil {
		return o, false, gerr
	}
	if ok {
		return fresh, true, nil
	}
	if fresh.Status == to {
		return fresh, false, nil
	}
	return fresh, false, fmt.Errorf("%w: order %s moved to %s while changing %s -> %s",
		domain.ErrConflict, o.ID, fresh.Status, o.Status, to)
}
