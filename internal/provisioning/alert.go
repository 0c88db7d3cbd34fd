package provisioning

import (
	"context"
	"log/slog"

	"provisioner/internal/notify"
	"provisioner/internal/observability"
)

type Alert struct {
	OrderID    string
	CustomerID string
	Step       string
	Err        error
}

// Alerter is told about every provisioning failure an operator has to resolve.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// OperatorAlerter logs, counts and, when an operator address is set, emails.
type OperatorAlerter struct {
	Notifier Notifier
	To       string
}

func (a *OperatorAlerter) Alert(ctx context.Context, al Alert) {
	observability.Alerts.WithLabelValues(al.Step).Inc()
	errText := ""
	if al.Err != nil {
		errText = al.Err.Error()
	}
	slog.Error("provisioning needs operator attention",
		"order_id", al.OrderID, "customer_id", al.CustomerID, "step", al.Step, "err", errText)

	if a == nil || a.Notifier == nil || a.To == "" {
		return
	}
	if err := a.Notifier.Send(ctx, notify.OperatorAlert(a.To, al.OrderID, al.Step, errText)); err != nil {
		slog.Warn("operator alert email failed", "order_id", al.OrderID, "err", err)
	}
}
