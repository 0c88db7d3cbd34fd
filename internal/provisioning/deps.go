// Package provisioning turns a paid order into a working voice channel:
// the orchestrator (auto-setup), the verification engine and the operator
// override operations all live here and share the same collaborators.
package provisioning

import (
	"context"
	"errors"
	"fmt"

	"provisioner/internal/domain"
	"provisioner/internal/providers/twilio"
	"provisioner/internal/providers/vapi"
)

// AgentPlatform is the voice agent platform as used by provisioning.
type AgentPlatform interface {
	Configured() bool
	CreateAssistant(ctx context.Context, req vapi.AssistantRequest) (vapi.Assistant, error)
	UpdateAssistant(ctx context.Context, id string, req vapi.AssistantRequest) (vapi.Assistant, error)
	GetAssistant(ctx context.Context, id string) (vapi.Assistant, error)
	LinkNumber(ctx context.Context, number, assistantID, name string) (vapi.PhoneNumber, error)
	FindNumber(ctx context.Context, number string) (vapi.PhoneNumber, bool, error)
	CreateCall(ctx context.Context, assistantID, phoneNumberID, customerNumber string) (vapi.Call, error)
}

// Carrier is the number inventory, already wrapped with rate limiting and a
// circuit breaker (see GuardedCarrier).
type Carrier interface {
	Configured() bool
	Search(ctx context.Context, country string) ([]twilio.AvailableNumber, error)
	Purchase(ctx context.Context, number, friendlyName string) (twilio.IncomingNumber, error)
	Lookup(ctx context.Context, sid string) (twilio.IncomingNumber, error)
}

type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Locker grants per-order exclusivity; a held key fails with domain.ErrOrderBusy.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func orderLockKey(id string) string { return "order:" + id }

// ProviderError wraps a failed provider call. It matches domain.ErrProvider
// and unwraps to the provider's own error.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == domain.ErrProvider }

func providerErr(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}
