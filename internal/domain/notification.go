package domain

type NotificationKind string

const (
	NotifyOrderConfirmed NotificationKind = "order_confirmed"
	NotifyAgentReady     NotificationKind = "agent_ready"
	NotifyActivation     NotificationKind = "activation_instructions"
	NotifyOperatorAlert  NotificationKind = "operator_alert"
)

type Notification struct {
	Kind    NotificationKind  `json:"kind"`
	To      string            `json:"to"`
	OrderID string            `json:"orderId,omitempty"`
	Vars    map[string]string `json:"vars"`
}
