package domain

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// MapProviderStatus folds payment-provider subscription statuses onto ours.
func MapProviderStatus(s string) SubscriptionStatus {
	switch s {
	case "active":
		return SubscriptionActive
	case "trialing":
		return SubscriptionTrial
	case "past_due", "unpaid":
		return SubscriptionSuspended
	default:
		return SubscriptionCancelled
	}
}

type Customer struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Plan              string             `json:"plan"`
	Status            SubscriptionStatus `json:"status"`
	MonthlyCallsLimit int                `json:"monthly_calls_limit"`
	PaymentCustomerID string             `json:"payment_customer_id"`
	SubscriptionID    string             `json:"subscription_id"`
	UpdatedAt         time.Time          `json:"updated_at"`
}
