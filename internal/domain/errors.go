package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPrecondition      = errors.New("precondition failed")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrConflict          = errors.New("concurrent modification")
	ErrOrderBusy         = errors.New("order is being provisioned")
	ErrForbidden         = errors.New("forbidden")
	ErrNotConfigured     = errors.New("not configured")
	ErrEventInProgress   = errors.New("event is being processed")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrProvider          = errors.New("provider call failed")
	// ErrOutcomeUnknown marks a non-idempotent provider call whose result could not be observed.
	ErrOutcomeUnknown = errors.New("provider outcome unknown")
)
