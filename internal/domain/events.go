package domain

// PaymentEvent is the closed set of payment-provider events the ingestor understands.
type PaymentEvent interface {
	EventID() string
	EventType() string
	paymentEvent()
}

type EventMeta struct {
	ID   string
	Type string
}

func (m EventMeta) EventID() string   { return m.ID }
func (m EventMeta) EventType() string { return m.Type }
func (EventMeta) paymentEvent()       {}

type CheckoutCompleted struct {
	EventMeta
	SessionID         string
	CustomerID        string
	CustomerName      string
	PlanID            string
	PendingID         string
	PaymentCustomerID string
	SubscriptionID    string
	SetupFeeCents     int64
}

type SubscriptionChanged struct {
	EventMeta
	SubscriptionID    string
	PaymentCustomerID string
	PlanID            string
	ProviderStatus    string
	Deleted           bool
}

type InvoicePaid struct {
	EventMeta
	InvoiceID         string
	PaymentCustomerID string
	SubscriptionID    string
}

type InvoiceFailed struct {
	EventMeta
	InvoiceID         string
	PaymentCustomerID string
	SubscriptionID    string
}

// UnhandledEvent is acknowledged and otherwise ignored.
type UnhandledEvent struct {
	EventMeta
}

type EventStatus string

const (
	EventProcessing EventStatus = "processing"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
)

// EventClaim is the outcome of trying to take ownership of an event id.
type EventClaim int

const (
	ClaimAcquired EventClaim = iota
	ClaimCompleted
	ClaimInProgress
)
