package store

import (
	"time"

	"provisioner/internal/domain"
)

type StatusChange struct {
	OrderID string
	From    domain.Status
	To      domain.Status
	Actor   string
	Now     time.Time
}

type AgentUpdate struct {
	OrderID string
	AgentID string
	Config  domain.AgentConfig
	Now     time.Time
}

type NumberUpdate struct {
	OrderID string
	Number  string
	SID     string
	Now     time.Time
}

type EventClaimRequest struct {
	EventID    string
	EventType  string
	Now        time.Time
	StaleAfter time.Duration
}

type EventResult struct {
	EventID string
	Status  domain.EventStatus
	Error   string
	Now     time.Time
}

type SubscriptionUpdate struct {
	PaymentCustomerID string
	SubscriptionID    string
	Status            domain.SubscriptionStatus
	// OnlyFrom restricts the update to customers currently in one of these statuses.
	OnlyFrom []domain.SubscriptionStatus
	Now      time.Time
}

type NotificationInsert struct {
	ID      string
	Kind    domain.NotificationKind
	To      string
	OrderID string
	Vars    map[string]string
	State   string
	Now     time.Time
}

type Notification struct {
	ID            string
	Kind          domain.NotificationKind
	To            string
	OrderID       string
	Vars          map[string]string
	State         string
	ProviderMsgID string
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type NotificationStateUpdate struct {
	ID            string
	State         string
	ProviderMsgID string
	LastError     string
	Now           time.Time
}

type ProviderAttempt struct {
	NotificationID string
	Provider       string
	ProviderMsgID  string
	HTTPStatus     int
	ErrorMsg       string
	RequestJSON    any
	ResponseJSON   any
}
