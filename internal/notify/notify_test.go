package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioner/internal/domain"
	"provisioner/internal/providers/resend"
	sqsqueue "provisioner/internal/queue/sqs"
	"provisioner/internal/store/memory"
)

type fakeQueue struct {
	jobs []sqsqueue.EmailJob
	err  error
}

func (f *fakeQueue) EnqueueEmail(ctx context.Context, job sqsqueue.EmailJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeSender struct {
	reqs []resend.SendRequest
}

func (f *fakeSender) Send(ctx context.Context, req resend.SendRequest) (resend.SendResponse, int, []byte, error) {
	f.reqs = append(f.reqs, req)
	return resend.SendResponse{ID: "em_1"}, 200, nil, nil
}

func TestRenderActivationUsesCarrierSteps(t *testing.T) {
	msg, err := Render(domain.Notification{
		Kind:    domain.NotifyActivation,
		To:      "mario@example.com",
		OrderID: "ord_1",
		Vars:    map[string]string{"name": "Mario", "carrier": "TIM", "phone_number": "+390212345678", "customer_phone": "+393331234567"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Attiva il Tuo AI Centralinista - Istruzioni", msg.Subject)
	assert.Contains(t, msg.HTML, "Chiama il 119")
	assert.Contains(t, msg.HTML, "<strong>+390212345678</strong>")
	assert.NotContains(t, msg.HTML, "{instructions}")
}

func TestForwardingInstructionsFallback(t *testing.T) {
	out := ForwardingInstructions("Fastweb", "+390212345678", "+393331234567")
	assert.True(t, strings.HasPrefix(out, "<p>"))
	assert.Contains(t, out, "+393331234567")
	assert.Contains(t, ForwardingInstructions("windtre", "+39", ""), "155")
}

func TestRenderEscapesVariables(t *testing.T) {
	msg, err := Render(domain.Notification{Kind: domain.NotifyOrderConfirmed, To: "x@y.z", Vars: map[string]string{"name": "<script>", "plan_name": "Pro"}})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestRenderUnknownKind(t *testing.T) {
	_, err := Render(domain.Notification{Kind: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQueuedStoresThenEnqueues(t *testing.T) {
	st := memory.New()
	q := &fakeQueue{}
	d := &Queued{Store: st, Queue: q}

	err := d.Send(context.Background(), domain.Notification{Kind: domain.NotifyAgentReady, To: "mario@example.com", OrderID: "ord_1"})
	require.NoError(t, err)
	require.Len(t, q.jobs, 1)

	n, err := st.GetNotification(context.Background(), q.jobs[0].NotificationID)
	require.NoError(t, err)
	assert.Equal(t, "queued", n.State)
	assert.Equal(t, "ord_1", n.OrderID)
}

func TestQueuedMarksFailedWhenEnqueueFails(t *testing.T) {
	st := memory.New()
	d := &Queued{Store: st, Queue: &fakeQueue{err: errors.New("sqs down")}}
	err := d.Send(context.Background(), domain.Notification{Kind: domain.NotifyAgentReady, To: "mario@example.com"})
	require.Error(t, err)
}

func TestDirectSendsRenderedEmail(t *testing.T) {
	s := &fakeSender{}
	d := &Direct{Sender: s}
	require.NoError(t, d.Send(context.Background(), domain.Notification{Kind: domain.NotifyAgentReady, To: "mario@example.com", Vars: map[string]string{"phone_number": "+390212345678"}}))
	require.Len(t, s.reqs, 1)
	assert.Equal(t, []string{"mario@example.com"}, s.reqs[0].To)
	assert.Contains(t, s.reqs[0].HTML, "+390212345678")
}

func TestLogOnlyNeverFails(t *testing.T) {
	assert.NoError(t, LogOnly{}.Send(context.Background(), domain.Notification{Kind: domain.NotifyAgentReady}))
}
