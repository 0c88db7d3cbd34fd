package domain

import "fmt"

type Status string

const (
	StatusPendingSetup      Status = "pending_setup"
	StatusSetupInProgress   Status = "setup_in_progress"
	StatusWaitingActivation Status = "waiting_activation"
	StatusActive            Status = "active"
	StatusSuspended         Status = "suspended"
)

// OpenStatuses are the statuses an operator still has work to do on.
var OpenStatuses = []Status{StatusPendingSetup, StatusSetupInProgress, StatusWaitingActivation}

var edges = map[Status][]Status{
	StatusPendingSetup:      {StatusSetupInProgress, StatusSuspended},
	StatusSetupInProgress:   {StatusWaitingActivation, StatusSuspended},
	StatusWaitingActivation: {StatusActive, StatusSuspended},
}

// forward is the provisioning path; suspended sits outside it.
var forward = []Status{StatusPendingSetup, StatusSetupInProgress, StatusWaitingActivation, StatusActive}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPendingSetup, StatusSetupInProgress, StatusWaitingActivation, StatusActive, StatusSuspended:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

func (s Status) Terminal() bool {
	return s == StatusActive || s == StatusSuspended
}

func CanTransition(from, to Status) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition validates both the edge and the resources the target status requires.
func CheckTransition(o Order, to Status) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, to)
	}
	switch to {
	case StatusSetupInProgress:
		if !o.HasAgent() {
			return fmt.Errorf("%w: voice agent not created", ErrPrecondition)
		}
	case StatusWaitingActivation:
		if !o.HasAgent() || !o.HasNumber() {
			return fmt.Errorf("%w: voice agent and phone number are both required", ErrPrecondition)
		}
	case StatusActive:
		if !o.ForwardingConfirmed {
			return fmt.Errorf("%w: customer has not confirmed call forwarding", ErrPrecondition)
		}
		if !o.Verification.AllGreen() {
			return fmt.Errorf("%w: setup verification is not complete", ErrPrecondition)
		}
	}
	return nil
}

// NextTowards returns the next forward status on the way from -> target.
// ok is false when from is already at or past target, or off the forward path.
func NextTowards(from, target Status) (Status, bool) {
	fi, ti := forwardIndex(from), forwardIndex(target)
	if fi < 0 || ti < 0 || fi >= ti {
		return "", false
	}
	return forward[fi+1], true
}

// Reached reports whether s is at or beyond target on the forward path.
func Reached(s, target Status) bool {
	si, ti := forwardIndex(s), forwardIndex(target)
	return si >= 0 && ti >= 0 && si >= ti
}

func forwardIndex(s Status) int {
	for i, f := range forward {
		if f == s {
			return i
		}
	}
	return -1
}

// ResumeTarget derives where a suspended order goes back to from the resources it holds.
func ResumeTarget(o Order) Status {
	switch {
	case o.Timeline.ActivatedAt != nil && o.HasAgent() && o.HasNumber():
		return StatusActive
	case o.HasAgent() && o.HasNumber():
		return StatusWaitingActivation
	case o.HasAgent():
		return StatusSetupInProgress
	default:
		return StatusPendingSetup
	}
}
