package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioner/internal/domain"
	"provisioner/internal/store/memory"
)

func seed(t *testing.T, o domain.Order) (*Repository, *memory.Store) {
	t.Helper()
	st := memory.New()
	if o.Status == "" {
		o.Status = domain.StatusPendingSetup
	}
	if o.Timeline.CreatedAt.IsZero() {
		o.Timeline.CreatedAt = time.Now().UTC()
	}
	st.PutOrder(o)
	return New(st), st
}

func TestAdvanceRequiresAgent(t *testing.T) {
	ctx := context.Background()
	repo, _ := seed(t, domain.Order{ID: "o1"})

	_, _, err := repo.Advance(ctx, "o1", domain.StatusSetupInProgress, "ops@x.com")
	require.ErrorIs(t, err, domain.ErrPrecondition)

	_, err = repo.AttachAgent(ctx, "o1", "asst_1", domain.AgentConfig{Prompt: "p"})
	require.NoError(t, err)

	o, changed, err := repo.Advance(ctx, "o1", domain.StatusSetupInProgress, "ops@x.com")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusSetupInProgress, o.Status)
	assert.Equal(t, "ops@x.com", o.SetupActor)
	require.NotNil(t, o.Timeline.SetupStartedAt)

	_, changed, err = repo.Advance(ctx, "o1", domain.StatusSetupInProgress, "ops@x.com")
	require.NoError(t, err)
	assert.False(t, changed, "repeat transition must be a no-op")
}

func TestWaitingActivationNeverWithoutBothResources(t *testing.T) {
	ctx := context.Background()
	repo, _ := seed(t, domain.Order{ID: "o1", AgentID: "asst_1", Status: domain.StatusSetupInProgress})

	_, _, err := repo.AdvanceTo(ctx, "o1", domain.StatusWaitingActivation, "")
	require.ErrorIs(t, err, domain.ErrPrecondition)

	o, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSetupInProgress, o.Status)
}

func TestAdvanceToWalksForwardEdges(t *testing.T) {
	ctx := context.Background()
	repo, _ := seed(t, domain.Order{ID: "o1", AgentID: "asst_1", PhoneNumber: "+390212345678"})

	o, changed, err := repo.AdvanceTo(ctx, "o1", domain.StatusWaitingActivation, "ops@x.com")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusWaitingActivation, o.Status)
	assert.NotNil(t, o.Timeline.SetupStartedAt)
	assert.NotNil(t, o.Timeline.AgentReadyAt)

	_, changed, err = repo.AdvanceTo(ctx, "o1", domain.StatusWaitingActivation, "ops@x.com")
	require.NoError(t, err)
	assert.False(t, changed)

	_, changed, err = repo.AdvanceTo(ctx, "o1", domain.StatusSetupInProgress, "")
	require.NoError(t, err)
	assert.False(t, changed, "an order past the target is left alone")
}

func TestConcurrentAdvanceHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo, _ := seed(t, domain.Order{ID: "o1", AgentID: "a", PhoneNumber: "+390212345678", Status: domain.StatusSetupInProgress})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := repo.AdvanceTo(ctx, "o1", domain.StatusWaitingActivation, "")
			if err != nil && !errors.Is(err, domain.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
			if changed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestTimelineStampsAreNotOverwritten(t *testing.T) {
	ctx := context.Background()
	repo, _ := seed(t, domain.Order{ID: "o1", AgentID: "a", PhoneNumber: "+390212345678", Status: domain.StatusSetupInProgress})
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.Now = func() time.Time { return first }

	o, _, err := repo.Advance(ctx, "o1", domain.StatusWaitingActivation, "")
	require.NoError(t, err)
	require.NotNil(t, o.Timeline.AgentReadyAt)

	repo.Now = func() time.Time { return first.Add(time.Hour) }
	_, _, err = repo.Suspend(ctx, "o1", "ops@x.com")
	require.NoError(t, err)
	o, _, err = repo.Resume(ctx, "o1", "ops@x.com")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusWaitingActivation, o.Status)
	assert.True(t, o.Timeline.AgentReadyAt.Equal(first))
}

func TestSuspendTerminalIsIllegal(t *testing.T) {
	ctx := context.Background()
	repo, _ := seed(t, domain.Order{ID: "o1", Status: domain.StatusActive, AgentID: "a", PhoneNumber: "+39"})

	_, _, err := repo.Suspend(ctx, "o1", "ops@x.com")
	require.ErrorIs(t, err, domain.ErrIllegalTransition)

	_, _, err = repo.Resume(ctx, "o1", "ops@x.com")
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestCurrentReturnsNewest(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Now().UTC()
	st.PutOrder(domain.Order{ID: "old", CustomerID: "a@x.com", Timeline: domain.Timeline{CreatedAt: base}})
	st.PutOrder(domain.Order{ID: "new", CustomerID: "a@x.com", Timeline: domain.Timeline{CreatedAt: base.Add(time.Minute)}})
	repo := New(st)

	o, err := repo.Current(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "new", o.ID)

	_, err = repo.Current(ctx, "b@x.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListDefaultsToOpenOrders(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Now().UTC()
	st.PutOrder(domain.Order{ID: "a", Status: domain.StatusPendingSetup, Timeline: domain.Timeline{CreatedAt: base}})
	st.PutOrder(domain.Order{ID: "b", Status: domain.StatusActive, Timeline: domain.Timeline{CreatedAt: base}})
	st.PutOrder(domain.Order{ID: "c", Status: domain.StatusWaitingActivation, Timeline: domain.Timeline{CreatedAt: base.Add(time.Second)}})
	repo := New(st)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "c", list[1].ID)

	list, err = repo.List(ctx, domain.StatusActive)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
}
