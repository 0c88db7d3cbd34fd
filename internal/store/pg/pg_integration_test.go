//go:build integration

package pg

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioner/internal/domain"
	"provisioner/internal/store"
)

func TestClaimEventLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New(setupTestDB(t))
	now := time.Now().UTC()
	req := store.EventClaimRequest{EventID: "evt_1", EventType: "checkout.session.completed", Now: now, StaleAfter: 5 * time.Minute}

	claim, err := s.ClaimEvent(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimAcquired, claim)

	claim, err = s.ClaimEvent(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimInProgress, claim)

	require.NoError(t, s.FinishEvent(ctx, store.EventResult{EventID: "evt_1", Status: domain.EventFailed, Error: "boom", Now: now}))
	claim, err = s.ClaimEvent(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimAcquired, claim, "failed events are retried")

	require.NoError(t, s.FinishEvent(ctx, store.EventResult{EventID: "evt_1", Status: domain.EventCompleted, Now: now}))
	claim, err = s.ClaimEvent(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimCompleted, claim)

	var attempts int
	require.NoError(t, s.DB.QueryRow(ctx, `SELECT attempts FROM payment_events WHERE event_id='evt_1'`).Scan(&attempts))
	assert.Equal(t, 2, attempts)
}

// concurrentClaims races n ClaimEvent calls for the same id and counts the winners.
func concurrentClaims(t *testing.T, s *Store, req store.EventClaimRequest, n int) int {
	t.Helper()
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		won   int
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claim, err := s.ClaimEvent(context.Background(), req)
			assert.NoError(t, err)
			if claim == domain.ClaimAcquired {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	return won
}

func TestClaimEventConcurrentDeliveriesHaveOneOwner(t *testing.T) {
	ctx := context.Background()
	s := New(setupTestDB(t))
	now := time.Now().UTC()
	req := store.EventClaimRequest{EventID: "evt_race", EventType: "checkout.session.completed", Now: now, StaleAfter: 5 * time.Minute}

	assert.Equal(t, 1, concurrentClaims(t, s, req, 10))

	require.NoError(t, s.FinishEvent(ctx, store.EventResult{EventID: "evt_race", Status: domain.EventFailed, Error: "boom", Now: now}))
	assert.Equal(t, 1, concurrentClaims(t, s, req, 10), "a failed event is reclaimed by one delivery")

	var attempts int
	require.NoError(t, s.DB.QueryRow(ctx, `SELECT attempts FROM payment_events WHERE event_id='evt_race'`).Scan(&attempts))
	assert.Equal(t, 2, attempts)
}

func TestClaimEventReclaimsStaleProcessing(t *testing.T) {
	ctx := context.Background()
	s := New(setupTestDB(t))
	start := time.Now().UTC()

	claim, err := s.ClaimEvent(ctx, store.EventClaimRequest{EventID: "evt_2", EventType: "x", Now: start, StaleAfter: time.Minute})
	require.NoError(t, err)
	require.Equal(t, domain.ClaimAcquired, claim)

	claim, err = s.ClaimEvent(ctx, store.EventClaimRequest{EventID: "evt_2", EventType: "x", Now: start.Add(2 * time.Minute), StaleAfter: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimAcquired, claim)
}

func TestConsumePendingOnce(t *testing.T) {
	ctx := context.Background()
	s := New(setupTestDB(t))
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := pendingConfig("pc_1", now)
	require.NoError(t, s.InsertPending(ctx, p))

	got, found, err := s.FindLatestPending(ctx, "mario@example.com", "cus_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "pc_1", got.ID)
	assert.Equal(t, "Pizzeria Da Mario", got.Config.CompanyName)

	ord := p.NewOrder("ord_1", "cs_1", "sub_1", now)
	created, err := s.ConsumePending(ctx, p.ID, ord)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.ConsumePending(ctx, p.ID, p.NewOrder("ord_2", "cs_1", "sub_1", now))
	require.NoError(t, err)
	assert.False(t, created, "second consume is a no-op")

	_, found, err = s.GetPending(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, found)

	stored, found, err := s.GetOrderByCheckoutSession(ctx, "cs_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ord_1", stored.ID)
	assert.Equal(t, domain.StatusPendingSetup, stored.Status)
	require.Len(t, stored.Channels, 1)
	assert.Equal(t, "+393331234567", stored.Channels[0].Number)
	require.NotNil(t, stored.Timeline.PaidAt)
}

func TestConsumePendingDuplicateSessionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New(setupTestDB(t))
	now := time.Now().UTC()

	first := pendingConfig("pc_a", now)
	second := pendingConfig("pc_b", now)
	require.NoError(t, s.InsertPending(ctx, first))
	require.NoError(t, s.InsertPending(ctx, second))

	created, err := s.ConsumePending(ctx, first.ID, first.NewOrder("ord_a", "cs_same", "", now))
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.ConsumePending(ctx, second.ID, second.NewOrder("ord_b", "cs_same", "", now))
	require.NoError(t, err)
	assert.False(t, created)

	// the losing configuration survives for a later checkout
	_, found, err := s.GetPending(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestChangeStatusGuards(t *testing.T) {
	ctx := context.Background()
	s := New(setupTestDB(t))
	now := time.Now().UTC()
	seedOrder(t, s, "ord_g", now)

	ok, err := s.ChangeStatus(ctx, store.StatusChange{OrderID: "ord_g", From: domain.StatusSetupInProgress, To: domain.StatusWaitingActivation, Now: now})
	require.NoError(t, err)
	assert.False(t, ok, "stale from status")

	ok, err = s.ChangeStatus(ctx, store.StatusChange{OrderID: "ord_g", From: domain.StatusPendingSetup, To: domain.StatusSetupInProgress, Actor: "ops@example.com", Now: now})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ChangeStatus(ctx, store.StatusChange{OrderID: "ord_g", From: domain.StatusSetupInProgress, To: domain.StatusWaitingActivation, Now: now})
	require.NoError(t, err)
	assert.False(t, ok, "waiting needs agent and number")

	require.NoError(t, s.SetAgent(ctx, store.AgentUpdate{OrderID: "ord_g", AgentID: "asst_1", Config: domain.AgentConfig{Voice: "v1"}, Now: now}))
	require.NoError(t, s.SetNumber(ctx, store.NumberUpdate{OrderID: "ord_g", Number: "+390298765432", SID: "PN1", Now: now}))

	later := now.Add(time.Minute)
	ok, err = s.ChangeStatus(ctx, store.StatusChange{OrderID: "ord_g", From: domain.StatusSetupInProgress, To: domain.StatusWaitingActivation, Now: later})
	require.NoError(t, err)
	require.True(t, ok)

	o, found, err := s.GetOrder(ctx, "ord_g")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.StatusWaitingActivation, o.Status)
	assert.Equal(t, "asst_1", o.AgentID)
	assert.Equal(t, "+390298765432", o.PhoneNumber)
	assert.Equal(t, "ops@example.com", o.SetupActor)
	require.NotNil(t, o.Timeline.SetupStartedAt)
	require.NotNil(t, o.Timeline.AgentReadyAt)
	assert.True(t, o.Timeline.AgentReadyAt.After(*o.Timeline.SetupStartedAt))

	open, err := s.ListOrders(ctx, domain.OpenStatuses)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestSubscriptionStatusOnlyFrom(t *testing.T) {
	ctx := context.Background()
	s := New(setupTestDB(t))
	now := time.Now().UTC()

	require.NoError(t, s.UpsertCustomer(ctx, domain.Customer{
		ID: "mario@example.com", Name: "Mario", Plan: "starter", Status: domain.SubscriptionActive,
		MonthlyCallsLimit: 100, PaymentCustomerID: "cus_1", SubscriptionID: "sub_1", UpdatedAt: now,
	}))

	ok, err := s.UpdateSubscriptionStatus(ctx, store.SubscriptionUpdate{
		PaymentCustomerID: "cus_1", Status: domain.SubscriptionActive,
		OnlyFrom: []domain.SubscriptionStatus{domain.SubscriptionSuspended}, Now: now,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.UpdateSubscriptionStatus(ctx, store.SubscriptionUpdate{PaymentCustomerID: "cus_1", Status: domain.SubscriptionSuspended, Now: now})
	require.NoError(t, err)
	assert.True(t, ok)

	c, found, err := s.GetCustomer(ctx, "mario@example.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.SubscriptionSuspended, c.Status)
	assert.Equal(t, "sub_1", c.SubscriptionID)
}

func TestNotificationClaim(t *testing.T) {
	ctx := context.Background()
	s := New(setupTestDB(t))
	now := time.Now().UTC()

	require.NoError(t, s.InsertNotification(ctx, store.NotificationInsert{
		ID: "ntf_1", Kind: domain.NotifyActivation, To: "mario@example.com", OrderID: "ord_1",
		Vars: map[string]string{"phone_number": "+390298765432"}, State: "queued", Now: now,
	}))

	ok, err := s.ClaimNotification(ctx, "ntf_1", now, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimNotification(ctx, "ntf_1", now, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkNotification(ctx, store.NotificationStateUpdate{ID: "ntf_1", State: "sent", ProviderMsgID: "re_1", Now: now}))
	require.NoError(t, s.InsertAttempt(ctx, store.ProviderAttempt{NotificationID: "ntf_1", Provider: "resend", ProviderMsgID: "re_1", HTTPStatus: 200}))

	n, err := s.GetNotification(ctx, "ntf_1")
	require.NoError(t, err)
	assert.Equal(t, "sent", n.State)
	assert.Equal(t, "re_1", n.ProviderMsgID)
	assert.Equal(t, "+390298765432", n.Vars["phone_number"])
}

func pendingConfig(id string, now time.Time) domain.PendingConfig {
	return domain.PendingConfig{
		ID:                id,
		CustomerID:        "mario@example.com",
		CustomerName:      "Mario Rossi",
		PlanID:            "starter",
		PaymentCustomerID: "cus_1",
		Config: domain.OrderConfig{
			CompanyName:   "Pizzeria Da Mario",
			Industry:      "ristorante",
			CallbackPhone: "+393331234567",
			Carrier:       "tim",
			Channels:      []domain.MessagingChannel{{Number: "+393331234567", Enabled: true}},
		},
		CreatedAt: now,
	}
}

func seedOrder(t *testing.T, s *Store, id string, now time.Time) {
	t.Helper()
	p := pendingConfig("pc_"+id, now)
	require.NoError(t, s.InsertPending(context.Background(), p))
	created, err := s.ConsumePending(context.Background(), p.ID, p.NewOrder(id, "cs_"+id, "", now))
	require.NoError(t, err)
	require.True(t, created)
}

// setupTestDB creates a throwaway schema, applies the migrations into it and
// drops it when the test ends.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN not set")
	}
	ctx := context.Background()

	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	dbDSN, err := withSearchPath(dsn, schema)
	require.NoError(t, err)
	db, err := pgxpool.New(ctx, dbDSN)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	sqlBytes, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "000001_init.up.sql"))
	require.NoError(t, err)
	_, err = db.Exec(ctx, string(sqlBytes))
	require.NoError(t, err, "run migrations")
	return db
}

func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	q := u.Query()
	opts := q.Get("options")
	if opts != "" {
		opts += " -c search_path=" + schema
	} else {
		opts = "-c search_path=" + schema
	}
	q.Set("options", opts)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
