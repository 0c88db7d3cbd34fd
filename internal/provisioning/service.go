package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"provisioner/internal/domain"
	"provisioner/internal/notify"
	"provisioner/internal/orders"
	"provisioner/internal/providers/vapi"
	"provisioner/internal/util"
)

// Service is the override surface: the orchestrator's steps as individually
// callable operations, each under the order lock and safe to repeat.
type Service struct {
	Orders       *orders.Repository
	Orchestrator *Orchestrator
	Verifier     *Verifier
	Agents       AgentPlatform
	Notifier     Notifier
	Locker       Locker
	// Region resolves national-format numbers, e.g. "IT".
	Region string
}

func (s *Service) locked(ctx context.Context, id string, fn func() error) error {
	release, err := s.Locker.Acquire(ctx, orderLockKey(id))
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// ConfigureAgent creates the order's agent or overwrites the existing one's configuration.
func (s *Service) ConfigureAgent(ctx context.Context, id string, opts Options) (domain.Order, error) {
	var out domain.Order
	err := s.locked(ctx, id, func() error {
		ord, err := s.Orders.Get(ctx, id)
		if err != nil {
			return err
		}
		if ord.Status.Terminal() {
			return fmt.Errorf("%w: order is %s", domain.ErrIllegalTransition, ord.Status)
		}
		if opts.Voice != "" {
			// an explicit operator choice beats the customer's
			ord.VoiceID = ""
		}
		if ord, err = s.Orchestrator.createAgent(ctx, ord, opts, true); err != nil {
			return err
		}
		if ord.Status == domain.StatusPendingSetup {
			if ord, _, err = s.Orders.Advance(ctx, id, domain.StatusSetupInProgress, actorOr(opts.Actor, "operator")); err != nil {
				return err
			}
		}
		out = ord
		return nil
	})
	return out, err
}

// PurchaseNumber buys a number for an order that has an agent. An order that
// already has a number is returned unchanged.
func (s *Service) PurchaseNumber(ctx context.Context, id string) (domain.Order, error) {
	var out domain.Order
	err := s.locked(ctx, id, func() error {
		ord, err := s.Orders.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ord.HasAgent() {
			return fmt.Errorf("%w: create the voice agent before purchasing a number", domain.ErrPrecondition)
		}
		if ord.HasNumber() {
			out = ord
			return nil
		}
		if ord, err = s.Orchestrator.purchaseNumber(ctx, ord); err != nil {
			if s.Orchestrator.Alerter != nil {
				s.Orchestrator.Alerter.Alert(ctx, Alert{OrderID: id, CustomerID: ord.CustomerID, Step: StepNumber, Err: err})
			}
			return err
		}
		s.linkBestEffort(ctx, ord)
		out = ord
		return nil
	})
	return out, err
}

// AttachNumber records a number obtained outside the carrier integration.
func (s *Service) AttachNumber(ctx context.Context, id, number, sid string) (domain.Order, error) {
	normalized, err := util.NormalizePhone(number, s.region())
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if sid == "" {
		sid = ManualSIDPrefix + strconv.FormatInt(util.NowUTC().Unix(), 10)
	}
	var out domain.Order
	err = s.locked(ctx, id, func() error {
		ord, err := s.Orders.AttachNumber(ctx, id, normalized, sid)
		if err != nil {
			return err
		}
		s.linkBestEffort(ctx, ord)
		out = ord
		return nil
	})
	return out, err
}

func (s *Service) Verify(ctx context.Context, id, actor string) (VerifyResult, error) {
	var out VerifyResult
	err := s.locked(ctx, id, func() error {
		res, err := s.Verifier.Verify(ctx, id, actor)
		out = res
		return err
	})
	return out, err
}

// AutoSetup reruns the orchestrator; completed steps are skipped.
func (s *Service) AutoSetup(ctx context.Context, id string, opts Options) (Result, error) {
	return s.Orchestrator.Run(ctx, id, opts)
}

// Activate moves an order holding both resources to waiting_activation and
// sends the customer the call-forwarding instructions.
func (s *Service) Activate(ctx context.Context, id, actor string) (domain.Order, error) {
	var out domain.Order
	err := s.locked(ctx, id, func() error {
		ord, err := s.Orders.Get(ctx, id)
		if err != nil {
			return err
		}
		if ord.Status.Terminal() {
			return fmt.Errorf("%w: order is %s", domain.ErrIllegalTransition, ord.Status)
		}
		if !ord.HasAgent() || !ord.HasNumber() {
			return fmt.Errorf("%w: activation needs both a voice agent and a phone number", domain.ErrPrecondition)
		}
		if ord, _, err = s.Orders.AdvanceTo(ctx, id, domain.StatusWaitingActivation, actorOr(actor, "operator")); err != nil {
			return err
		}
		if s.Notifier != nil {
			if err := s.Notifier.Send(ctx, notify.Activation(ord)); err != nil {
				slog.Warn("activation notification failed", "order_id", id, "err", err)
			}
		}
		out = ord
		return nil
	})
	return out, err
}

// GoLive is the final operator step: waiting_activation to active.
func (s *Service) GoLive(ctx context.Context, id, actor string) (domain.Order, error) {
	var out domain.Order
	err := s.locked(ctx, id, func() error {
		ord, _, err := s.Orders.Advance(ctx, id, domain.StatusActive, actorOr(actor, "operator"))
		out = ord
		return err
	})
	return out, err
}

func (s *Service) Suspend(ctx context.Context, id, actor string) (domain.Order, error) {
	var out domain.Order
	err := s.locked(ctx, id, func() error {
		ord, _, err := s.Orders.Suspend(ctx, id, actorOr(actor, "operator"))
		out = ord
		return err
	})
	return out, err
}

func (s *Service) Resume(ctx context.Context, id, actor string) (domain.Order, error) {
	var out domain.Order
	err := s.locked(ctx, id, func() error {
		ord, _, err := s.Orders.Resume(ctx, id, actorOr(actor, "operator"))
		out = ord
		return err
	})
	return out, err
}

// ConfirmForwarding is the customer's statement that forwarding is set up. It
// places a best-effort test call to the callback number.
func (s *Service) ConfirmForwarding(ctx context.Context, id, customerID string) (domain.Order, error) {
	ord, err := s.owned(ctx, id, customerID)
	if err != nil {
		return domain.Order{}, err
	}
	if !ord.HasNumber() {
		return domain.Order{}, fmt.Errorf("%w: no number assigned yet", domain.ErrPrecondition)
	}
	if ord, err = s.Orders.ConfirmForwarding(ctx, id); err != nil {
		return domain.Order{}, err
	}
	if _, err := s.testCall(ctx, ord); err != nil {
		slog.Warn("test call after forwarding confirmation failed", "order_id", id, "err", err)
	}
	return ord, nil
}

func (s *Service) TestCall(ctx context.Context, id, customerID string) (vapi.Call, error) {
	ord, err := s.owned(ctx, id, customerID)
	if err != nil {
		return vapi.Call{}, err
	}
	return s.testCall(ctx, ord)
}

func (s *Service) testCall(ctx context.Context, ord domain.Order) (vapi.Call, error) {
	if !ord.HasAgent() || !ord.HasNumber() {
		return vapi.Call{}, fmt.Errorf("%w: agent and number required for a test call", domain.ErrPrecondition)
	}
	to, err := util.NormalizePhone(ord.CallbackPhone, s.region())
	if err != nil {
		return vapi.Call{}, fmt.Errorf("%w: callback phone: %v", domain.ErrPrecondition, err)
	}
	pn, found, err := s.Agents.FindNumber(ctx, ord.PhoneNumber)
	if err != nil {
		return vapi.Call{}, providerErr("vapi", "find_number", err)
	}
	if !found {
		return vapi.Call{}, fmt.Errorf("%w: %s is not linked on the agent platform", domain.ErrPrecondition, ord.PhoneNumber)
	}
	call, err := s.Agents.CreateCall(ctx, ord.AgentID, pn.ID, to)
	if err != nil {
		return vapi.Call{}, providerErr("vapi", "create_call", err)
	}
	slog.Info("test call placed", "order_id", ord.ID, "call_id", call.ID)
	return call, nil
}

func (s *Service) owned(ctx context.Context, id, customerID string) (domain.Order, error) {
	ord, err := s.Orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if customerID == "" || ord.CustomerID != customerID {
		return domain.Order{}, fmt.Errorf("%w: order %s", domain.ErrForbidden, id)
	}
	return ord, nil
}

func (s *Service) linkBestEffort(ctx context.Context, ord domain.Order) {
	if !ord.HasAgent() || !ord.HasNumber() || s.Agents == nil || !s.Agents.Configured() {
		return
	}
	if _, err := s.Agents.LinkNumber(ctx, ord.PhoneNumber, ord.AgentID, ord.CompanyName); err != nil {
		slog.Warn("linking number to agent failed; rerun auto-setup to retry", "order_id", ord.ID, "err", err)
	}
}

func (s *Service) region() string {
	if s.Region == "" {
		return defaultCountry
	}
	return s.Region
}
