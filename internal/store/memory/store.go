// Package memory is an in-process implementation of the store used by tests
// and by single-instance runs with STORE_DRIVER=memory.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"provisioner/internal/domain"
	"provisioner/internal/store"
)

type eventRecord struct {
	status    domain.EventStatus
	eventType string
	err       string
	attempts  int
	updatedAt time.Time
}

type Store struct {
	mu            sync.Mutex
	orders        map[string]domain.Order
	pending       map[string]domain.PendingConfig
	events        map[string]*eventRecord
	customers     map[string]domain.Customer
	notifications map[string]store.Notification
	attempts      []store.ProviderAttempt
}

func New() *Store {
	return &Store{
		orders:        map[string]domain.Order{},
		pending:       map[string]domain.PendingConfig{},
		events:        map[string]*eventRecord{},
		customers:     map[string]domain.Customer{},
		notifications: map[string]store.Notification{},
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

// PutOrder stores an order as-is. Used to seed fixtures.
func (s *Store) PutOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok, nil
}

func (s *Store) GetOrderByCheckoutSession(ctx context.Context, sessionID string) (domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if sessionID != "" && o.CheckoutSessionID == sessionID {
			return o, true, nil
		}
	}
	return domain.Order{}, false, nil
}

func (s *Store) ListOrders(ctx context.Context, statuses []domain.Status) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Order{}
	for _, o := range s.orders {
		if len(statuses) == 0 || slices.Contains(statuses, o.Status) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timeline.CreatedAt.Before(out[j].Timeline.CreatedAt) })
	return out, nil
}

func (s *Store) ListCustomerOrders(ctx context.Context, customerID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Order{}
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timeline.CreatedAt.After(out[j].Timeline.CreatedAt) })
	return out, nil
}

func (s *Store) mutate(id string, now time.Time, fn func(o *domain.Order)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&o)
	o.UpdatedAt = now
	s.orders[id] = o
	return nil
}

func (s *Store) SetAgent(ctx context.Context, in store.AgentUpdate) error {
	return s.mutate(in.OrderID, in.Now, func(o *domain.Order) {
		o.AgentID = in.AgentID
		o.Agent = in.Config
	})
}

func (s *Store) SetNumber(ctx context.Context, in store.NumberUpdate) error {
	return s.mutate(in.OrderID, in.Now, func(o *domain.Order) {
		o.PhoneNumber = in.Number
		o.PhoneNumberSID = in.SID
	})
}

func (s *Store) SetForwarding(ctx context.Context, id string, confirmed bool, now time.Time) error {
	return s.mutate(id, now, func(o *domain.Order) { o.ForwardingConfirmed = confirmed })
}

func (s *Store) SetVerification(ctx context.Context, id string, v domain.Verification, now time.Time) error {
	return s.mutate(id, now, func(o *domain.Order) { o.Verification = v })
}

func (s *Store) ChangeStatus(ctx context.Context, in store.StatusChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[in.OrderID]
	if !ok || o.Status != in.From {
		return false, nil
	}
	if (in.To == domain.StatusWaitingActivation || in.To == domain.StatusActive) && (!o.HasAgent() || !o.HasNumber()) {
		return false, nil
	}
	now := in.Now
	stamp := func(p **time.Time) {
		if *p == nil {
			*p = &now
		}
	}
	switch in.To {
	case domain.StatusSetupInProgress:
		stamp(&o.Timeline.SetupStartedAt)
		if in.Actor != "" {
			o.SetupActor = in.Actor
		}
	case domain.StatusWaitingActivation:
		stamp(&o.Timeline.AgentReadyAt)
	case domain.StatusActive:
		stamp(&o.Timeline.ActivatedAt)
	case domain.StatusSuspended:
		stamp(&o.Timeline.SuspendedAt)
	}
	o.Status = in.To
	o.UpdatedAt = now
	s.orders[in.OrderID] = o
	return true, nil
}

func (s *Store) InsertPending(ctx context.Context, p domain.PendingConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[p.ID]; ok {
		return errors.New("pending config already exists: " + p.ID)
	}
	s.pending[p.ID] = p
	return nil
}

func (s *Store) GetPending(ctx context.Context, id string) (domain.PendingConfig, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	return p, ok, nil
}

func (s *Store) FindLatestPending(ctx context.Context, customerID, paymentCustomerID string) (domain.PendingConfig, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  domain.PendingConfig
		found bool
	)
	for _, p := range s.pending {
		if p.CustomerID != customerID || p.PaymentCustomerID != paymentCustomerID {
			continue
		}
		if !found || p.CreatedAt.After(best.CreatedAt) {
			best, found = p, true
		}
	}
	return best, found, nil
}

func (s *Store) ConsumePending(ctx context.Context, pendingID string, o domain.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[pendingID]; !ok {
		return false, nil
	}
	if o.CheckoutSessionID != "" {
		for _, existing := range s.orders {
			if existing.CheckoutSessionID == o.CheckoutSessionID {
				return false, nil
			}
		}
	}
	delete(s.pending, pendingID)
	s.orders[o.ID] = o
	return true, nil
}

func (s *Store) ClaimEvent(ctx context.Context, in store.EventClaimRequest) (domain.EventClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.events[in.EventID]
	if !ok {
		s.events[in.EventID] = &eventRecord{status: domain.EventProcessing, eventType: in.EventType, attempts: 1, updatedAt: in.Now}
		return domain.ClaimAcquired, nil
	}
	switch {
	case rec.status == domain.EventCompleted:
		return domain.ClaimCompleted, nil
	case rec.status == domain.EventFailed,
		rec.status == domain.EventProcessing && rec.updatedAt.Before(in.Now.Add(-in.StaleAfter)):
		rec.status = domain.EventProcessing
		rec.err = ""
		rec.attempts++
		rec.updatedAt = in.Now
		return domain.ClaimAcquired, nil
	default:
		return domain.ClaimInProgress, nil
	}
}

func (s *Store) FinishEvent(ctx context.Context, in store.EventResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.events[in.EventID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.status = in.Status
	rec.err = in.Error
	rec.updatedAt = in.Now
	return nil
}

// EventStatus exposes an idempotency record for assertions.
func (s *Store) EventStatus(id string) (domain.EventStatus, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.events[id]
	if !ok {
		return "", 0, false
	}
	return rec.status, rec.attempts, true
}

func (s *Store) UpsertCustomer(ctx context.Context, c domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.customers[c.ID]; ok {
		if c.Name == "" {
			c.Name = prev.Name
		}
		if c.PaymentCustomerID == "" {
			c.PaymentCustomerID = prev.PaymentCustomerID
		}
		if c.SubscriptionID == "" {
			c.SubscriptionID = prev.SubscriptionID
		}
	}
	s.customers[c.ID] = c
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (domain.Customer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	return c, ok, nil
}

func (s *Store) UpdateSubscriptionStatus(ctx context.Context, in store.SubscriptionUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := false
	for id, c := range s.customers {
		if c.PaymentCustomerID != in.PaymentCustomerID {
			continue
		}
		if len(in.OnlyFrom) > 0 && !slices.Contains(in.OnlyFrom, c.Status) {
			continue
		}
		c.Status = in.Status
		if in.SubscriptionID != "" {
			c.SubscriptionID = in.SubscriptionID
		}
		c.UpdatedAt = in.Now
		s.customers[id] = c
		updated = true
	}
	return updated, nil
}

func (s *Store) InsertNotification(ctx context.Context, in store.NotificationInsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[in.ID] = store.Notification{
		ID: in.ID, Kind: in.Kind, To: in.To, OrderID: in.OrderID, Vars: in.Vars,
		State: in.State, CreatedAt: in.Now, UpdatedAt: in.Now,
	}
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (store.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return store.Notification{}, domain.ErrNotFound
	}
	return n, nil
}

func (s *Store) ClaimNotification(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return false, nil
	}
	if n.State == "queued" || (n.State == "processing" && n.UpdatedAt.Before(now.Add(-staleAfter))) {
		n.State = "processing"
		n.UpdatedAt = now
		s.notifications[id] = n
		return true, nil
	}
	return false, nil
}

func (s *Store) MarkNotification(ctx context.Context, in store.NotificationStateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[in.ID]
	if !ok {
		return domain.ErrNotFound
	}
	n.State = in.State
	if in.ProviderMsgID != "" {
		n.ProviderMsgID = in.ProviderMsgID
	}
	n.LastError = in.LastError
	n.UpdatedAt = in.Now
	s.notifications[in.ID] = n
	return nil
}

func (s *Store) InsertAttempt(ctx context.Context, in store.ProviderAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, in)
	return nil
}

func (s *Store) Attempts() []store.ProviderAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.attempts)
}
