// Package notify delivers customer and operator notifications. Delivery is
// either queued (stored row + SQS job picked up by the notifier), direct
// (synchronous email) or log-only when no email provider is configured.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"provisioner/internal/domain"
	"provisioner/internal/observability"
	"provisioner/internal/providers/resend"
	sqsqueue "provisioner/internal/queue/sqs"
	"provisioner/internal/store"
	"provisioner/internal/util"
)

type Store interface {
	InsertNotification(ctx context.Context, in store.NotificationInsert) error
	MarkNotification(ctx context.Context, in store.NotificationStateUpdate) error
}

type Enqueuer interface {
	EnqueueEmail(ctx context.Context, job sqsqueue.EmailJob) error
}

type EmailSender interface {
	Send(ctx context.Context, req resend.SendRequest) (resend.SendResponse, int, []byte, error)
}

// Queued stores the notification and hands it to the notifier through SQS.
type Queued struct {
	Store Store
	Queue Enqueuer
}

func (q *Queued) Send(ctx context.Context, n domain.Notification) error {
	if n.To == "" {
		return fmt.Errorf("%w: notification without recipient", domain.ErrInvalidInput)
	}
	if _, err := Render(n); err != nil {
		return err
	}
	id := util.NewNotificationID()
	now := util.NowUTC()
	if err := q.Store.InsertNotification(ctx, store.NotificationInsert{
		ID: id, Kind: n.Kind, To: n.To, OrderID: n.OrderID, Vars: n.Vars, State: "queued", Now: now,
	}); err != nil {
		observability.Notifications.WithLabelValues(string(n.Kind), "store_error").Inc()
		return err
	}
	if err := q.Queue.EnqueueEmail(ctx, sqsqueue.EmailJob{NotificationID: id, Kind: string(n.Kind), To: n.To, OrderID: n.OrderID}); err != nil {
		observability.Notifications.WithLabelValues(string(n.Kind), "enqueue_error").Inc()
		_ = q.Store.MarkNotification(ctx, store.NotificationStateUpdate{ID: id, State: "failed", LastError: "enqueue_failed", Now: time.Now().UTC()})
		return err
	}
	observability.Notifications.WithLabelValues(string(n.Kind), "queued").Inc()
	slog.Info("notification queued", "notification_id", id, "kind", n.Kind, "order_id", n.OrderID)
	return nil
}

// Direct renders and sends the email inside the caller's request.
type Direct struct {
	Sender EmailSender
}

func (d *Direct) Send(ctx context.Context, n domain.Notification) error {
	msg, err := Render(n)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resp, status, _, err := d.Sender.Send(ctx, resend.SendRequest{To: []string{n.To}, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		observability.Notifications.WithLabelValues(string(n.Kind), "error").Inc()
		return fmt.Errorf("send %s email (status %d): %w", n.Kind, status, err)
	}
	observability.Notifications.WithLabelValues(string(n.Kind), "sent").Inc()
	slog.Info("notification sent", "kind", n.Kind, "order_id", n.OrderID, "provider_msg_id", resp.ID)
	return nil
}

// LogOnly records what would have been sent.
type LogOnly struct{}

func (LogOnly) Send(ctx context.Context, n domain.Notification) error {
	observability.Notifications.WithLabelValues(string(n.Kind), "not_configured").Inc()
	slog.Warn("email provider not configured; notification not sent", "kind", n.Kind, "to", n.To, "order_id", n.OrderID)
	return nil
}
