package worker

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"provisioner/internal/domain"
	"provisioner/internal/notify"
	"provisioner/internal/observability"
	"provisioner/internal/providers"
	"provisioner/internal/providers/resend"
	sqsqueue "provisioner/internal/queue/sqs"
	"provisioner/internal/store"
)

type Store interface {
	GetNotification(ctx context.Context, id string) (store.Notification, error)
	ClaimNotification(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (bool, error)
	MarkNotification(ctx context.Context, in store.NotificationStateUpdate) error
	InsertAttempt(ctx context.Context, in store.ProviderAttempt) error
}

type EmailSender interface {
	Send(ctx context.Context, req resend.SendRequest) (resend.SendResponse, int, []byte, error)
}

type Processor struct {
	Store      Store
	Sender     EmailSender
	Limiter    *rate.Limiter
	Breaker    *gobreaker.CircuitBreaker
	StaleAfter time.Duration
	// Sleep is replaced in tests.
	Sleep func(time.Duration)
}

const maxAttempts = 3

func (p *Processor) Process(ctx context.Context, job sqsqueue.EmailJob) error {
	n, err := p.Store.GetNotification(ctx, job.NotificationID)
	if errors.Is(err, domain.ErrNotFound) {
		// row never committed or already purged; nothing to deliver
		return nil
	}
	if err != nil {
		return err
	}

	// Idempotent consumer: skip final states
	if n.State == "submitted" || n.State == "failed" {
		return nil
	}
	claimed, err := p.Store.ClaimNotification(ctx, n.ID, time.Now().UTC(), p.staleAfter())
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	msg, err := notify.Render(domain.Notification{Kind: n.Kind, To: n.To, OrderID: n.OrderID, Vars: n.Vars})
	if err != nil {
		p.mark(ctx, n.ID, "failed", "", "template_not_found")
		return nil
	}
	req := resend.SendRequest{To: []string{n.To}, Subject: msg.Subject, HTML: msg.HTML}
	attemptReq := map[string]any{"to": n.To, "kind": n.Kind, "orderId": n.OrderID}

	var lastErr error
	start := time.Now()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if p.Limiter != nil {
			waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
			err := p.Limiter.Wait(waitCtx)
			cancelWait()
			if err != nil {
				// no token is transient; leave the row for redelivery
				observability.EmailSend.WithLabelValues("rate_limited_local", "0").Inc()
				p.sleep(200 * time.Millisecond)
				continue
			}
		}

		res, err := p.executeWithBreaker(ctx, req)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.EmailSend.WithLabelValues("cb_open", "0").Inc()
			// breaker protection is transient: do not mark failed, let SQS redeliver
			p.mark(ctx, n.ID, "queued", "", "circuit_open")
			return err
		}

		if err == nil {
			observability.EmailSend.WithLabelValues("ok", strconv.Itoa(res.httpStatus)).Inc()
			observability.EmailLatency.Observe(time.Since(start).Seconds())
			_ = p.Store.InsertAttempt(ctx, store.ProviderAttempt{
				NotificationID: n.ID, Provider: "resend", ProviderMsgID: res.resp.ID, HTTPStatus: res.httpStatus,
				RequestJSON: attemptReq, ResponseJSON: rawJSON(res.raw),
			})
			return p.Store.MarkNotification(ctx, store.NotificationStateUpdate{
				ID: n.ID, State: "submitted", ProviderMsgID: res.resp.ID, Now: time.Now().UTC(),
			})
		}

		lastErr = err
		var ce callError
		httpStatus := 0
		var raw []byte
		if errors.As(err, &ce) {
			httpStatus, raw = ce.httpStatus, ce.raw
		}
		observability.EmailSend.WithLabelValues("error", strconv.Itoa(httpStatus)).Inc()
		_ = p.Store.InsertAttempt(ctx, store.ProviderAttempt{
			NotificationID: n.ID, Provider: "resend", HTTPStatus: httpStatus, ErrorMsg: err.Error(),
			RequestJSON: attemptReq, ResponseJSON: rawJSON(raw),
		})

		if errors.Is(err, domain.ErrNotConfigured) || !providers.ShouldRetry(err, httpStatus) {
			p.mark(ctx, n.ID, "failed", "", "resend_non_retryable")
			return nil
		}
		p.sleep(providers.Backoff(attempt))
	}

	p.mark(ctx, n.ID, "failed", "", "resend_retry_exhausted")
	return lastErr
}

func (p *Processor) executeWithBreaker(ctx context.Context, req resend.SendRequest) (sendResult, error) {
	call := func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
		defer cancel()

		resp, httpStatus, raw, err := p.Sender.Send(reqCtx, req)
		if err != nil {
			return nil, callError{err: err, httpStatus: httpStatus, raw: raw}
		}
		return sendResult{resp: resp, httpStatus: httpStatus, raw: raw}, nil
	}

	var (
		out any
		err error
	)
	if p.Breaker == nil {
		out, err = call()
	} else {
		out, err = p.Breaker.Execute(call)
	}
	if err != nil {
		return sendResult{}, err
	}
	return out.(sendResult), nil
}

func (p *Processor) mark(ctx context.Context, id, state, providerMsgID, lastError string) {
	_ = p.Store.MarkNotification(ctx, store.NotificationStateUpdate{
		ID: id, State: state, ProviderMsgID: providerMsgID, LastError: lastError, Now: time.Now().UTC(),
	})
}

func (p *Processor) staleAfter() time.Duration {
	if p.StaleAfter > 0 {
		return p.StaleAfter
	}
	return 2 * time.Minute
}

func (p *Processor) sleep(d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}

func rawJSON(b []byte) any { return map[string]any{"raw": string(b)} }

type sendResult struct {
	resp       resend.SendResponse
	httpStatus int
	raw        []byte
}

type callError struct {
	err        error
	httpStatus int
	raw        []byte
}

func (e callError) Error() string { return e.err.Error() }
func (e callError) Unwrap() error { return e.err }
