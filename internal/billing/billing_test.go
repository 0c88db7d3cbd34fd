package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioner/internal/domain"
	"provisioner/internal/orders"
	"provisioner/internal/pending"
	"provisioner/internal/providers/stripe"
	"provisioner/internal/provisioning"
	"provisioner/internal/store"
	"provisioner/internal/store/memory"
)

type fakeParser map[string]domain.PaymentEvent

func (f fakeParser) Parse(payload []byte, header string) (domain.PaymentEvent, error) {
	if header != "ok" {
		return nil, domain.ErrInvalidSignature
	}
	ev, ok := f[string(payload)]
	if !ok {
		return domain.UnhandledEvent{EventMeta: domain.EventMeta{ID: "evt_bad", Type: "checkout.session.completed"}},
			fmt.Errorf("%w: checkout session: unexpected end of JSON", domain.ErrInvalidInput)
	}
	return ev, nil
}

type stubProvisioner struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (s *stubProvisioner) Run(ctx context.Context, orderID string, opts provisioning.Options) (provisioning.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, orderID)
	if s.err != nil {
		return provisioning.Result{OrderID: orderID}, s.err
	}
	return provisioning.Result{OrderID: orderID, Status: domain.StatusWaitingActivation}, nil
}

type recordingNotifier struct{ sent []domain.Notification }

func (r *recordingNotifier) Send(ctx context.Context, n domain.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

type fakeFees struct{ keys []string }

func (f *fakeFees) Configured() bool { return true }

func (f *fakeFees) ChargeSetupFee(ctx context.Context, paymentCustomerID string, cents int64, description, key string) (string, error) {
	f.keys = append(f.keys, key)
	return "ii_1", nil
}

// flakyStore fails the first customer upsert.
type flakyStore struct {
	*memory.Store
	failures int
}

func (f *flakyStore) UpsertCustomer(ctx context.Context, c domain.Customer) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("db unavailable")
	}
	return f.Store.UpsertCustomer(ctx, c)
}

type fixture struct {
	store    *memory.Store
	bridge   *pending.Bridge
	prov     *stubProvisioner
	notifier *recordingNotifier
	fees     *fakeFees
	ing      *Ingestor
}

var checkoutEvent = domain.CheckoutCompleted{
	EventMeta:         domain.EventMeta{ID: "evt_1", Type: "checkout.session.completed"},
	SessionID:         "cs_1",
	CustomerID:        "mario@example.com",
	CustomerName:      "Mario Rossi",
	PlanID:            "pro",
	PaymentCustomerID: "cus_1",
	SubscriptionID:    "sub_1",
}

func newFixture(t *testing.T, events fakeParser) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		prov:     &stubProvisioner{},
		notifier: &recordingNotifier{},
		fees:     &fakeFees{},
	}
	f.bridge = pending.New(f.store)
	f.ing = &Ingestor{
		Parser:      events,
		Store:       f.store,
		Bridge:      f.bridge,
		Orders:      orders.New(f.store),
		Fees:        f.fees,
		Notifier:    f.notifier,
		Provisioner: f.prov,
	}
	return f
}

func (f *fixture) stage(t *testing.T) domain.PendingConfig {
	t.Helper()
	p, err := f.bridge.Stage(context.Background(), domain.PendingConfig{
		CustomerID:        "mario@example.com",
		PlanID:            "pro",
		PaymentCustomerID: "cus_1",
		Config: domain.OrderConfig{
			CompanyName:   "Pizzeria Da Mario",
			Industry:      "ristorante",
			CallbackPhone: "+393331234567",
			Carrier:       "tim",
			Channels:      []domain.MessagingChannel{{Number: "+393331234567", Enabled: true}},
		},
	})
	require.NoError(t, err)
	return p
}

func TestCheckoutCreatesOneOrderAcrossDuplicates(t *testing.T) {
	f := newFixture(t, fakeParser{"checkout": checkoutEvent})
	f.stage(t)
	ctx := context.Background()

	ack, err := f.ing.Ingest(ctx, []byte("checkout"), "ok")
	require.NoError(t, err)
	assert.Equal(t, Ack{Received: true}, ack)

	ack, err = f.ing.Ingest(ctx, []byte("checkout"), "ok")
	require.NoError(t, err)
	assert.True(t, ack.Skipped)

	list, err := f.store.ListCustomerOrders(ctx, "mario@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	o := list[0]
	assert.Equal(t, domain.StatusPendingSetup, o.Status)
	assert.Equal(t, "cs_1", o.CheckoutSessionID)
	assert.NotNil(t, o.Timeline.PaidAt)
	assert.Equal(t, "Mario Rossi", o.CustomerName)

	assert.Equal(t, []string{o.ID}, f.prov.runs)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, domain.NotifyOrderConfirmed, f.notifier.sent[0].Kind)
	assert.Equal(t, []string{"setup-fee-cs_1"}, f.fees.keys)

	c, found, err := f.store.GetCustomer(ctx, "mario@example.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.SubscriptionActive, c.Status)
	assert.Equal(t, 500, c.MonthlyCallsLimit)

	status, attempts, _ := f.store.EventStatus("evt_1")
	assert.Equal(t, domain.EventCompleted, status)
	assert.Equal(t, 1, attempts)
}

func TestConcurrentDeliveriesProcessOnce(t *testing.T) {
	f := newFixture(t, fakeParser{"checkout": checkoutEvent})
	f.stage(t)
	ctx := context.Background()

	const deliveries = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		acks  = make([]Ack, deliveries)
		errs  = make([]error, deliveries)
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			acks[i], errs[i] = f.ing.Ingest(ctx, []byte("checkout"), "ok")
		}(i)
	}
	close(start)
	wg.Wait()

	handled := 0
	for i := range acks {
		switch {
		case errs[i] != nil:
			assert.ErrorIs(t, errs[i], domain.ErrEventInProgress)
		case acks[i].Skipped:
		default:
			handled++
		}
	}
	assert.Equal(t, 1, handled)

	list, err := f.store.ListCustomerOrders(ctx, "mario@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{list[0].ID}, f.prov.runs)
	assert.Len(t, f.notifier.sent, 1)
	assert.Equal(t, []string{"setup-fee-cs_1"}, f.fees.keys)

	status, attempts, _ := f.store.EventStatus("evt_1")
	assert.Equal(t, domain.EventCompleted, status)
	assert.Equal(t, 1, attempts)
}

func TestCheckoutInProgressIsRejected(t *testing.T) {
	f := newFixture(t, fakeParser{"checkout": checkoutEvent})
	f.stage(t)
	_, err := f.store.ClaimEvent(context.Background(), store.EventClaimRequest{
		EventID: "evt_1", EventType: "checkout.session.completed", Now: time.Now().UTC(), StaleAfter: time.Minute,
	})
	require.NoError(t, err)

	_, err = f.ing.Ingest(context.Background(), []byte("checkout"), "ok")
	require.ErrorIs(t, err, domain.ErrEventInProgress)
	assert.Empty(t, f.prov.runs)
}

func TestStaleClaimIsReclaimed(t *testing.T) {
	f := newFixture(t, fakeParser{"checkout": checkoutEvent})
	f.stage(t)
	_, err := f.store.ClaimEvent(context.Background(), store.EventClaimRequest{
		EventID: "evt_1", Now: time.Now().UTC().Add(-10 * time.Minute), StaleAfter: time.Minute,
	})
	require.NoError(t, err)

	_, err = f.ing.Ingest(context.Background(), []byte("checkout"), "ok")
	require.NoError(t, err)
	status, attempts, _ := f.store.EventStatus("evt_1")
	assert.Equal(t, domain.EventCompleted, status)
	assert.Equal(t, 2, attempts)
}

func TestFailedEventIsRetriedOnRedelivery(t *testing.T) {
	f := newFixture(t, fakeParser{"checkout": checkoutEvent})
	f.stage(t)
	flaky := &flakyStore{Store: f.store, failures: 1}
	f.ing.Store = flaky

	_, err := f.ing.Ingest(context.Background(), []byte("checkout"), "ok")
	require.Error(t, err)
	status, _, _ := f.store.EventStatus("evt_1")
	assert.Equal(t, domain.EventFailed, status)

	_, err = f.ing.Ingest(context.Background(), []byte("checkout"), "ok")
	require.NoError(t, err)
	status, attempts, _ := f.store.EventStatus("evt_1")
	assert.Equal(t, domain.EventCompleted, status)
	assert.Equal(t, 2, attempts)
	assert.Len(t, f.prov.runs, 1)
}

func TestProvisioningFailureStillAcknowledges(t *testing.T) {
	f := newFixture(t, fakeParser{"checkout": checkoutEvent})
	f.stage(t)
	f.prov.err = &provisioning.StepError{Step: provisioning.StepAgent, Err: domain.ErrProvider}

	ack, err := f.ing.Ingest(context.Background(), []byte("checkout"), "ok")
	require.NoError(t, err)
	assert.True(t, ack.Received)

	list, _ := f.store.ListCustomerOrders(context.Background(), "mario@example.com")
	require.Len(t, list, 1)
	assert.Equal(t, domain.StatusPendingSetup, list[0].Status)
}

func TestRedeliveryResumesExistingOrder(t *testing.T) {
	f := newFixture(t, fakeParser{"checkout": checkoutEvent})
	p := f.stage(t)
	ord, created, err := f.bridge.Consume(context.Background(), p, "cs_1", "sub_1")
	require.NoError(t, err)
	require.True(t, created)

	_, err = f.ing.Ingest(context.Background(), []byte("checkout"), "ok")
	require.NoError(t, err)
	assert.Equal(t, []string{ord.ID}, f.prov.runs)
	assert.Empty(t, f.notifier.sent)
}

func TestCheckoutWithoutPendingConfigUpdatesSubscriptionOnly(t *testing.T) {
	f := newFixture(t, fakeParser{"checkout": checkoutEvent})

	_, err := f.ing.Ingest(context.Background(), []byte("checkout"), "ok")
	require.NoError(t, err)
	list, _ := f.store.ListCustomerOrders(context.Background(), "mario@example.com")
	assert.Empty(t, list)
	assert.Empty(t, f.prov.runs)
	_, found, _ := f.store.GetCustomer(context.Background(), "mario@example.com")
	assert.True(t, found)
}

func TestSubscriptionLifecycle(t *testing.T) {
	meta := func(id, typ string) domain.EventMeta { return domain.EventMeta{ID: id, Type: typ} }
	f := newFixture(t, fakeParser{
		"checkout": checkoutEvent,
		"paid":     domain.InvoicePaid{EventMeta: meta("evt_paid", "invoice.payment_succeeded"), PaymentCustomerID: "cus_1"},
		"failed":   domain.InvoiceFailed{EventMeta: meta("evt_failed", "invoice.payment_failed"), PaymentCustomerID: "cus_1"},
		"paid2":    domain.InvoicePaid{EventMeta: meta("evt_paid2", "invoice.payment_succeeded"), PaymentCustomerID: "cus_1"},
		"deleted": domain.SubscriptionChanged{
			EventMeta: meta("evt_del", "customer.subscription.deleted"), PaymentCustomerID: "cus_1",
			ProviderStatus: "canceled", Deleted: true,
		},
	})
	ctx := context.Background()
	status := func() domain.SubscriptionStatus {
		c, _, err := f.store.GetCustomer(ctx, "mario@example.com")
		require.NoError(t, err)
		return c.Status
	}
	ingest := func(name string) {
		_, err := f.ing.Ingest(ctx, []byte(name), "ok")
		require.NoError(t, err)
	}

	ingest("checkout")
	ingest("paid")
	assert.Equal(t, domain.SubscriptionActive, status())
	ingest("failed")
	assert.Equal(t, domain.SubscriptionSuspended, status())
	ingest("paid2")
	assert.Equal(t, domain.SubscriptionActive, status())
	ingest("deleted")
	assert.Equal(t, domain.SubscriptionCancelled, status())
}

func TestInvalidSignatureHasNoSideEffects(t *testing.T) {
	f := newFixture(t, fakeParser{"checkout": checkoutEvent})
	_, err := f.ing.Ingest(context.Background(), []byte("checkout"), "forged")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
	_, _, found := f.store.EventStatus("evt_1")
	assert.False(t, found)
}

func TestUndecodableEventIsAcknowledgedOnce(t *testing.T) {
	f := newFixture(t, fakeParser{})
	ack, err := f.ing.Ingest(context.Background(), []byte("garbage"), "ok")
	require.NoError(t, err)
	assert.Equal(t, Ack{Received: true}, ack)
	status, _, found := f.store.EventStatus("evt_bad")
	require.True(t, found)
	assert.Equal(t, domain.EventCompleted, status)

	ack, err = f.ing.Ingest(context.Background(), []byte("garbage"), "ok")
	require.NoError(t, err)
	assert.True(t, ack.Skipped)
}

type fakeCheckoutAPI struct {
	last stripe.CheckoutRequest
}

func (f *fakeCheckoutAPI) Configured() bool { return true }

func (f *fakeCheckoutAPI) EnsureCustomer(ctx context.Context, email, name string) (string, error) {
	return "cus_9", nil
}

func (f *fakeCheckoutAPI) CreateCheckoutSession(ctx context.Context, req stripe.CheckoutRequest) (stripe.CheckoutSession, error) {
	f.last = req
	return stripe.CheckoutSession{ID: "cs_9", URL: "https://checkout.example.com/cs_9"}, nil
}

func TestCheckoutStagesPendingConfig(t *testing.T) {
	st := memory.New()
	api := &fakeCheckoutAPI{}
	c := NewCheckout(api, pending.New(st), map[string]string{"PRO": "price_pro"}, "https://app/ok", "https://app/ko")
	req := CheckoutRequest{
		CustomerID: "anna@example.com",
		PlanID:     "pro",
		Config: domain.OrderConfig{
			CompanyName: "Studio Anna", Industry: "studio_medico", CallbackPhone: "+393471112233", Carrier: "iliad",
			Channels: []domain.MessagingChannel{{Number: "+393471112233", Enabled: true}},
		},
	}

	res, err := c.Start(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/cs_9", res.URL)
	assert.Equal(t, res.PendingID, api.last.PendingID)
	assert.Equal(t, "price_pro", api.last.PriceID)
	assert.Equal(t, int64(14900), api.last.SetupFeeCents)

	p, found, err := st.GetPending(context.Background(), res.PendingID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "cus_9", p.PaymentCustomerID)

	req.PlanID = "enterprise"
	_, err = c.Start(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrNotConfigured)

	req.PlanID = "pro"
	req.Config.Channels = nil
	_, err = c.Start(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
