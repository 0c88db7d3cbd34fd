package notify

import (
	"provisioner/internal/domain"
)

func displayName(o domain.Order) string {
	if o.CustomerName != "" {
		return o.CustomerName
	}
	return o.CustomerID
}

func OrderConfirmed(o domain.Order) domain.Notification {
	planName := o.Plan
	if p, ok := domain.PlanByID(o.Plan); ok {
		planName = p.Name
	}
	return domain.Notification{
		Kind:    domain.NotifyOrderConfirmed,
		To:      o.CustomerID,
		OrderID: o.ID,
		Vars:    map[string]string{"name": displayName(o), "plan_name": planName, "company": o.CompanyName},
	}
}

func AgentReady(o domain.Order) domain.Notification {
	return domain.Notification{
		Kind:    domain.NotifyAgentReady,
		To:      o.CustomerID,
		OrderID: o.ID,
		Vars:    map[string]string{"name": displayName(o), "phone_number": o.PhoneNumber, "company": o.CompanyName},
	}
}

func Activation(o domain.Order) domain.Notification {
	return domain.Notification{
		Kind:    domain.NotifyActivation,
		To:      o.CustomerID,
		OrderID: o.ID,
		Vars: map[string]string{
			"name":           displayName(o),
			"phone_number":   o.PhoneNumber,
			"customer_phone": o.CallbackPhone,
			"carrier":        o.Carrier,
		},
	}
}

func OperatorAlert(to, orderID, step, errText string) domain.Notification {
	return domain.Notification{
		Kind:    domain.NotifyOperatorAlert,
		To:      to,
		OrderID: orderID,
		Vars:    map[string]string{"order_id": orderID, "step": step, "error": errText},
	}
}
