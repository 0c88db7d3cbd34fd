package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"provisioner/internal/domain"
	"provisioner/internal/providers"
	"provisioner/internal/providers/twilio"
)

// NumberAPI is the raw carrier client.
type NumberAPI interface {
	Configured() bool
	SearchAvailable(ctx context.Context, country string, limit int) ([]twilio.AvailableNumber, int, []byte, error)
	PurchaseNumber(ctx context.Context, phoneNumber, friendlyName string) (twilio.IncomingNumber, int, []byte, error)
	GetNumber(ctx context.Context, sid string) (twilio.IncomingNumber, int, []byte, error)
}

// GuardedCarrier puts every carrier call behind a token bucket and a circuit
// breaker. Search and Lookup retry transient failures; Purchase never does.
type GuardedCarrier struct {
	API         NumberAPI
	Limiter     *rate.Limiter
	Breaker     *gobreaker.CircuitBreaker
	CallTimeout time.Duration
	Sleep       func(time.Duration)
}

func (g *GuardedCarrier) Configured() bool { return g.API != nil && g.API.Configured() }

func (g *GuardedCarrier) Search(ctx context.Context, country string) ([]twilio.AvailableNumber, error) {
	var out []twilio.AvailableNumber
	err := g.retry(ctx, func(ctx context.Context) (int, error) {
		nums, status, _, err := g.API.SearchAvailable(ctx, country, 10)
		out = nums
		return status, err
	})
	if err != nil {
		return nil, providerErr("twilio", "search_numbers", err)
	}
	return out, nil
}

func (g *GuardedCarrier) Lookup(ctx context.Context, sid string) (twilio.IncomingNumber, error) {
	var out twilio.IncomingNumber
	err := g.retry(ctx, func(ctx context.Context) (int, error) {
		n, status, _, err := g.API.GetNumber(ctx, sid)
		out = n
		return status, err
	})
	if errors.Is(err, twilio.ErrNumberNotFound) {
		return twilio.IncomingNumber{}, err
	}
	if err != nil {
		return twilio.IncomingNumber{}, providerErr("twilio", "get_number", err)
	}
	return out, nil
}

// Purchase issues the buy request exactly once. When the request went out and
// its outcome cannot be observed the error wraps domain.ErrOutcomeUnknown.
func (g *GuardedCarrier) Purchase(ctx context.Context, number, friendlyName string) (twilio.IncomingNumber, error) {
	var out twilio.IncomingNumber
	status, sent, err := g.guarded(ctx, func(ctx context.Context) (int, error) {
		n, status, _, err := g.API.PurchaseNumber(ctx, number, friendlyName)
		out = n
		return status, err
	})
	if err == nil {
		return out, nil
	}
	if sent && providers.OutcomeUnknown(err, status) {
		return twilio.IncomingNumber{}, providerErr("twilio", "purchase_number",
			fmt.Errorf("%w: purchase of %s: %v", domain.ErrOutcomeUnknown, number, err))
	}
	return twilio.IncomingNumber{}, providerErr("twilio", "purchase_number", err)
}

func (g *GuardedCarrier) retry(ctx context.Context, call func(context.Context) (int, error)) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		var status int
		var sent bool
		status, sent, err = g.guarded(ctx, call)
		if err == nil {
			return nil
		}
		if !sent {
			return err
		}
		if !providers.ShouldRetry(err, status) {
			return err
		}
		g.sleep(providers.Backoff(attempt))
	}
	return err
}

// guardedResult lets a client error (4xx) pass through the breaker as a
// successful execution: it says nothing about carrier health.
type guardedResult struct {
	status int
	err    error
}

// guarded runs call behind the limiter and the breaker. sent is false when the
// request never left: unconfigured, throttled or breaker open.
func (g *GuardedCarrier) guarded(ctx context.Context, call func(context.Context) (int, error)) (status int, sent bool, err error) {
	if !g.Configured() {
		return 0, false, fmt.Errorf("carrier: %w", domain.ErrNotConfigured)
	}
	if g.Limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := g.Limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			return 0, false, fmt.Errorf("carrier rate limit: %w", err)
		}
	}
	exec := func() (any, error) {
		sent = true
		timeout := g.CallTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		status, err := call(callCtx)
		if err != nil && (status == 0 || status >= 500 || status == 429) {
			return guardedResult{status: status}, err
		}
		return guardedResult{status: status, err: err}, nil
	}

	var res any
	if g.Breaker == nil {
		res, err = exec()
	} else {
		res, err = g.Breaker.Execute(exec)
	}
	r, _ := res.(guardedResult)
	if err != nil {
		return r.status, sent, err
	}
	return r.status, sent, r.err
}

func (g *GuardedCarrier) sleep(d time.Duration) {
	if g.Sleep != nil {
		g.Sleep(d)
		return
	}
	time.Sleep(d)
}
