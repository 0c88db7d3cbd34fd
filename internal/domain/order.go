package domain

import "time"

type ResponseMode string

const (
	ResponseImmediate      ResponseMode = "immediate"
	ResponseMissedCallOnly ResponseMode = "missed_call_only"
)

type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldSelect  FieldType = "select"
	FieldBoolean FieldType = "boolean"
)

// OutputField describes one value the voice agent extracts from a call.
type OutputField struct {
	Name     string    `json:"name" validate:"required"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type" validate:"omitempty,oneof=text number select boolean"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
}

// MessagingChannel is a destination that receives the structured outcome of each call.
type MessagingChannel struct {
	Number  string        `json:"number" validate:"required"`
	Name    string        `json:"name,omitempty"`
	Enabled bool          `json:"enabled"`
	Fields  []OutputField `json:"fields,omitempty" validate:"dive"`
	Example string        `json:"example,omitempty"`
}

type AgentConfig struct {
	Prompt         string       `json:"prompt"`
	Voice          string       `json:"voice"`
	FirstMessage   string       `json:"first_message"`
	EndCallEnabled bool         `json:"end_call_enabled"`
	ResponseMode   ResponseMode `json:"response_mode"`
}

type Verification struct {
	AgentCreated       bool       `json:"agent_created"`
	AgentTestPassed    bool       `json:"agent_test_passed"`
	NumberPurchased    bool       `json:"number_purchased"`
	MessagingConnected bool       `json:"messaging_connected"`
	WebhookConfigured  bool       `json:"webhook_configured"`
	LastVerifiedAt     *time.Time `json:"last_verified_at,omitempty"`
}

// AllGreen is derived on every call; it is never persisted.
func (v Verification) AllGreen() bool {
	return v.AgentCreated && v.AgentTestPassed && v.NumberPurchased && v.MessagingConnected && v.WebhookConfigured
}

type Timeline struct {
	CreatedAt      time.Time  `json:"created_at"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	SetupStartedAt *time.Time `json:"setup_started_at,omitempty"`
	AgentReadyAt   *time.Time `json:"agent_ready_at,omitempty"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty"`
	SuspendedAt    *time.Time `json:"suspended_at,omitempty"`
}

type Order struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	CompanyName  string `json:"company_name"`
	Industry     string `json:"industry"`

	Plan              string `json:"subscription_plan"`
	PaymentCustomerID string `json:"payment_customer_id,omitempty"`
	CheckoutSessionID string `json:"checkout_session_id,omitempty"`
	SubscriptionID    string `json:"subscription_id,omitempty"`

	CallbackPhone string             `json:"callback_phone"`
	Carrier       string             `json:"carrier"`
	Channels      []MessagingChannel `json:"channels"`
	ResponseMode  ResponseMode       `json:"response_mode"`
	VoiceID       string             `json:"voice_id,omitempty"`
	Details       string             `json:"details,omitempty"`

	AgentID             string      `json:"agent_id,omitempty"`
	Agent               AgentConfig `json:"agent_config"`
	PhoneNumber         string      `json:"phone_number,omitempty"`
	PhoneNumberSID      string      `json:"phone_number_sid,omitempty"`
	ForwardingConfirmed bool        `json:"forwarding_confirmed"`

	Status       Status       `json:"setup_status"`
	Verification Verification `json:"verification"`
	Timeline     Timeline     `json:"timeline"`
	SetupActor   string       `json:"setup_actor,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (o Order) HasAgent() bool  { return o.AgentID != "" }
func (o Order) HasNumber() bool { return o.PhoneNumber != "" }

// OutputChannel returns the channel whose fields shape the agent's structured output:
// the first enabled one, else the first configured.
func (o Order) OutputChannel() (MessagingChannel, bool) {
	for _, c := range o.Channels {
		if c.Enabled {
			return c, true
		}
	}
	if len(o.Channels) > 0 {
		return o.Channels[0], true
	}
	return MessagingChannel{}, false
}

func (o Order) EnabledChannels() int {
	n := 0
	for _, c := range o.Channels {
		if c.Enabled {
			n++
		}
	}
	return n
}

// CustomerView is the coarse projection returned to customers.
type CustomerView struct {
	ID                  string   `json:"id"`
	CompanyName         string   `json:"company_name"`
	Plan                string   `json:"subscription_plan"`
	Status              Status   `json:"setup_status"`
	PhoneNumber         string   `json:"phone_number,omitempty"`
	Carrier             string   `json:"carrier"`
	ForwardingConfirmed bool     `json:"forwarding_confirmed"`
	Timeline            Timeline `json:"timeline"`
}

func (o Order) CustomerView() CustomerView {
	return CustomerView{
		ID:                  o.ID,
		CompanyName:         o.CompanyName,
		Plan:                o.Plan,
		Status:              o.Status,
		PhoneNumber:         o.PhoneNumber,
		Carrier:             o.Carrier,
		ForwardingConfirmed: o.ForwardingConfirmed,
		Timeline:            o.Timeline,
	}
}
