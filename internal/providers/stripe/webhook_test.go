package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioner/internal/domain"
)

const secret = "whsec_test"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestParseCheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1", "object": "event", "type": "checkout.session.completed", "api_version": "2020-08-27",
		"data": {"object": {
			"id": "cs_1", "object": "checkout.session", "customer": "cus_1", "subscription": "sub_1",
			"metadata": {"user_id": "mario@example.com", "subscription_plan": "pro", "setup_fee": "149", "pending_checkout_id": "pnd_1"}
		}}
	}`)
	ev, err := Verifier{Secret: secret}.Parse(payload, sign(payload, secret, time.Now()))
	require.NoError(t, err)

	cc, ok := ev.(domain.CheckoutCompleted)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "evt_1", cc.EventID())
	assert.Equal(t, "cs_1", cc.SessionID)
	assert.Equal(t, "mario@example.com", cc.CustomerID)
	assert.Equal(t, "pro", cc.PlanID)
	assert.Equal(t, "pnd_1", cc.PendingID)
	assert.Equal(t, "cus_1", cc.PaymentCustomerID)
	assert.Equal(t, "sub_1", cc.SubscriptionID)
	assert.Equal(t, int64(14900), cc.SetupFeeCents)
}

func TestParseRejectsBadSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_failed","data":{"object":{}}}`)
	_, err := Verifier{Secret: secret}.Parse(payload, sign(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = Verifier{Secret: secret}.Parse(payload, "")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestParseRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_failed","data":{"object":{}}}`)
	_, err := Verifier{Secret: secret}.Parse(payload, sign(payload, secret, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestParseSubscriptionAndInvoices(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, ev domain.PaymentEvent)
	}{
		{
			name:    "subscription deleted",
			payload: `{"id":"evt_2","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","status":"canceled"}}}`,
			check: func(t *testing.T, ev domain.PaymentEvent) {
				sc := ev.(domain.SubscriptionChanged)
				assert.True(t, sc.Deleted)
				assert.Equal(t, "cus_1", sc.PaymentCustomerID)
				assert.Equal(t, "canceled", sc.ProviderStatus)
			},
		},
		{
			name:    "invoice failed",
			payload: `{"id":"evt_3","type":"invoice.payment_failed","data":{"object":{"id":"in_1","object":"invoice","customer":"cus_1"}}}`,
			check: func(t *testing.T, ev domain.PaymentEvent) {
				inv := ev.(domain.InvoiceFailed)
				assert.Equal(t, "in_1", inv.InvoiceID)
			},
		},
		{
			name:    "invoice paid",
			payload: `{"id":"evt_4","type":"invoice.payment_succeeded","data":{"object":{"id":"in_2","object":"invoice","customer":"cus_1"}}}`,
			check: func(t *testing.T, ev domain.PaymentEvent) {
				assert.IsType(t, domain.InvoicePaid{}, ev)
			},
		},
		{
			name:    "unhandled",
			payload: `{"id":"evt_5","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`,
			check: func(t *testing.T, ev domain.PaymentEvent) {
				assert.IsType(t, domain.UnhandledEvent{}, ev)
				assert.Equal(t, "charge.refunded", ev.EventType())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := []byte(tt.payload)
			ev, err := Verifier{Secret: secret}.Parse(p, sign(p, secret, time.Now()))
			require.NoError(t, err)
			tt.check(t, ev)
		})
	}
}

func TestMissingEventIDFallsBackToPayloadHash(t *testing.T) {
	p := []byte(`{"type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
	ev, err := Verifier{Secret: secret}.Parse(p, sign(p, secret, time.Now()))
	require.NoError(t, err)
	assert.Regexp(t, `^hash:[0-9a-f]{64}$`, ev.EventID())
}

func TestParseFee(t *testing.T) {
	assert.Equal(t, int64(9900), parseFee("99"))
	assert.Equal(t, int64(14950), parseFee("149.50"))
	assert.Equal(t, int64(0), parseFee("abc"))
	assert.Equal(t, "149.00", formatFee(14900))
}

func TestUnconfiguredBilling(t *testing.T) {
	b := NewBilling("")
	assert.False(t, b.Configured())
	_, err := b.EnsureCustomer(context.Background(), "a@b.c", "")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}
