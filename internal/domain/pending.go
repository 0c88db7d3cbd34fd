package domain

import "time"

// OrderConfig is what the customer chose before paying.
type OrderConfig struct {
	CompanyName   string             `json:"company_name" validate:"required"`
	Industry      string             `json:"industry" validate:"required"`
	CallbackPhone string             `json:"customer_phone" validate:"required"`
	Carrier       string             `json:"phone_provider" validate:"required"`
	Channels      []MessagingChannel `json:"channels" validate:"required,min=1,dive"`
	ResponseMode  ResponseMode       `json:"response_mode" validate:"omitempty,oneof=immediate missed_call_only"`
	VoiceID       string             `json:"voice_id,omitempty"`
	Details       string             `json:"details,omitempty"`
}

type PendingConfig struct {
	ID                string      `json:"id"`
	CustomerID        string      `json:"customer_id"`
	CustomerName      string      `json:"customer_name"`
	PlanID            string      `json:"plan_id"`
	PaymentCustomerID string      `json:"payment_customer_id"`
	Config            OrderConfig `json:"config"`
	CreatedAt         time.Time   `json:"created_at"`
}

// NewOrder builds the initial pending_setup order for a consumed pending configuration.
func (p PendingConfig) NewOrder(id, checkoutSessionID, subscriptionID string, now time.Time) Order {
	mode := p.Config.ResponseMode
	if mode == "" {
		mode = ResponseImmediate
	}
	paid := now
	return Order{
		ID:                id,
		CustomerID:        p.CustomerID,
		CustomerName:      p.CustomerName,
		CompanyName:       p.Config.CompanyName,
		Industry:          p.Config.Industry,
		Plan:              p.PlanID,
		PaymentCustomerID: p.PaymentCustomerID,
		CheckoutSessionID: checkoutSessionID,
		SubscriptionID:    subscriptionID,
		CallbackPhone:     p.Config.CallbackPhone,
		Carrier:           p.Config.Carrier,
		Channels:          p.Config.Channels,
		ResponseMode:      mode,
		VoiceID:           p.Config.VoiceID,
		Details:           p.Config.Details,
		Status:            StatusPendingSetup,
		Timeline:          Timeline{CreatedAt: now, PaidAt: &paid},
		UpdatedAt:         now,
	}
}
