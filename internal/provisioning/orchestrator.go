package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"provisioner/internal/domain"
	"provisioner/internal/notify"
	"provisioner/internal/observability"
	"provisioner/internal/orders"
	"provisioner/internal/providers/vapi"
)

const (
	StepAgent   = "agent"
	StepNumber  = "number"
	StepLink    = "link"
	StepAdvance = "advance"
)

const defaultCountry = "IT"

// StepError reports which step stopped a run. Steps before it stay persisted.
type StepError struct {
	Step    string
	OrderID string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("auto-setup of %s failed at %s: %v", e.OrderID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type Result struct {
	OrderID        string        `json:"order_id"`
	AgentID        string        `json:"agent_id,omitempty"`
	PhoneNumber    string        `json:"phone_number,omitempty"`
	PhoneNumberSID string        `json:"phone_number_sid,omitempty"`
	Status         domain.Status `json:"setup_status"`
	Notified       bool          `json:"notified"`
}

func resultOf(o domain.Order) Result {
	return Result{
		OrderID:        o.ID,
		AgentID:        o.AgentID,
		PhoneNumber:    o.PhoneNumber,
		PhoneNumberSID: o.PhoneNumberSID,
		Status:         o.Status,
	}
}

// Orchestrator runs auto-setup: agent, number, link, advance. Each step is
// skipped when the order already holds its result, so a rerun resumes.
type Orchestrator struct {
	Orders      *orders.Repository
	Agents      AgentPlatform
	Carrier     Carrier
	Notifier    Notifier
	Locker      Locker
	Alerter     Alerter
	CallbackURL string
	Country     string
}

// Run takes the order lock and provisions. A held lock fails fast with domain.ErrOrderBusy.
func (o *Orchestrator) Run(ctx context.Context, orderID string, opts Options) (Result, error) {
	release, err := o.Locker.Acquire(ctx, orderLockKey(orderID))
	if err != nil {
		return Result{OrderID: orderID}, err
	}
	defer release()
	return o.run(ctx, orderID, opts)
}

func (o *Orchestrator) run(ctx context.Context, orderID string, opts Options) (Result, error) {
	actor := actorOr(opts.Actor, "auto-setup")
	ord, err := o.Orders.Get(ctx, orderID)
	if err != nil {
		return Result{OrderID: orderID}, err
	}
	if ord.Status.Terminal() {
		return resultOf(ord), fmt.Errorf("%w: order %s is %s", domain.ErrIllegalTransition, ord.ID, ord.Status)
	}
	log := slog.With("order_id", ord.ID)

	if !ord.HasAgent() {
		if ord, err = o.createAgent(ctx, ord, opts, false); err != nil {
			return o.fail(ctx, ord, StepAgent, err)
		}
		log.Info("voice agent created", "agent_id", ord.AgentID)
	}
	if ord.Status == domain.StatusPendingSetup {
		if ord, _, err = o.Orders.Advance(ctx, ord.ID, domain.StatusSetupInProgress, actor); err != nil {
			return o.fail(ctx, ord, StepAdvance, err)
		}
	}
	o.stepOK(StepAgent)

	if !ord.HasNumber() {
		if ord, err = o.purchaseNumber(ctx, ord); err != nil {
			return o.fail(ctx, ord, StepNumber, err)
		}
		log.Info("phone number purchased", "phone_number", ord.PhoneNumber, "sid", ord.PhoneNumberSID)
	}
	o.stepOK(StepNumber)

	if err := o.link(ctx, ord); err != nil {
		return o.fail(ctx, ord, StepLink, err)
	}
	o.stepOK(StepLink)

	ord, changed, err := o.Orders.AdvanceTo(ctx, ord.ID, domain.StatusWaitingActivation, actor)
	if err != nil {
		return o.fail(ctx, ord, StepAdvance, err)
	}
	o.stepOK(StepAdvance)

	res := resultOf(ord)
	if changed {
		res.Notified = sendAgentReady(ctx, o.Notifier, ord)
	}
	log.Info("auto-setup complete", "status", ord.Status, "notified", res.Notified)
	return res, nil
}

// createAgent creates the platform assistant, or updates the existing one when
// update is set and the order already has an agent, and persists the result.
func (o *Orchestrator) createAgent(ctx context.Context, ord domain.Order, opts Options, update bool) (domain.Order, error) {
	if o.CallbackURL == "" {
		return ord, fmt.Errorf("%w: agent callback url", domain.ErrNotConfigured)
	}
	cfg := ResolveAgentConfig(ord, opts)
	ch, _ := ord.OutputChannel()
	req := vapi.NewAssistantRequest(agentName(ord), cfg, ch, o.CallbackURL, map[string]string{"order_id": ord.ID})

	var (
		a   vapi.Assistant
		err error
	)
	if update && ord.HasAgent() {
		a, err = o.Agents.UpdateAssistant(ctx, ord.AgentID, req)
		if err == nil && a.ID == "" {
			a.ID = ord.AgentID
		}
	} else {
		a, err = o.Agents.CreateAssistant(ctx, req)
	}
	if err != nil {
		return ord, providerErr("vapi", "assistant", err)
	}
	if a.ID == "" {
		return ord, providerErr("vapi", "assistant", errors.New("platform returned no assistant id"))
	}
	updated, err := o.Orders.AttachAgent(ctx, ord.ID, a.ID, cfg)
	if err != nil {
		// the assistant exists on the platform but not on the order
		return ord, fmt.Errorf("agent %s created but not saved: %w", a.ID, err)
	}
	return updated, nil
}

func (o *Orchestrator) purchaseNumber(ctx context.Context, ord domain.Order) (domain.Order, error) {
	country := o.Country
	if country == "" {
		country = defaultCountry
	}
	nums, err := o.Carrier.Search(ctx, country)
	if err != nil {
		return ord, err
	}
	if len(nums) == 0 {
		return ord, providerErr("twilio", "search_numbers", fmt.Errorf("no %s numbers available", country))
	}
	bought, err := o.Carrier.Purchase(ctx, nums[0].PhoneNumber, agentName(ord))
	if err != nil {
		return ord, err
	}
	number := bought.PhoneNumber
	if number == "" {
		number = nums[0].PhoneNumber
	}
	updated, err := o.Orders.AttachNumber(ctx, ord.ID, number, bought.Sid)
	if err != nil {
		return ord, fmt.Errorf("number %s (%s) purchased but not saved: %w", number, bought.Sid, err)
	}
	return updated, nil
}

func (o *Orchestrator) link(ctx context.Context, ord domain.Order) error {
	if _, err := o.Agents.LinkNumber(ctx, ord.PhoneNumber, ord.AgentID, ord.CompanyName); err != nil {
		return providerErr("vapi", "link_number", err)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, ord domain.Order, step string, err error) (Result, error) {
	observability.ProvisioningSteps.WithLabelValues(step, "error").Inc()
	if o.Alerter != nil {
		o.Alerter.Alert(ctx, Alert{OrderID: ord.ID, CustomerID: ord.CustomerID, Step: step, Err: err})
	}
	return resultOf(ord), &StepError{Step: step, OrderID: ord.ID, Err: err}
}

func (o *Orchestrator) stepOK(step string) {
	observability.ProvisioningSteps.WithLabelValues(step, "ok").Inc()
}

// sendAgentReady must only be called by the writer whose compare-and-set moved
// the order into waiting_activation.
func sendAgentReady(ctx context.Context, n Notifier, ord domain.Order) bool {
	if n == nil {
		return false
	}
	if err := n.Send(ctx, notify.AgentReady(ord)); err != nil {
		slog.Warn("agent ready notification failed", "order_id", ord.ID, "err", err)
		return false
	}
	return true
}

func agentName(o domain.Order) string {
	name := strings.TrimSpace(o.CompanyName)
	if o.Industry != "" {
		name += " - " + o.Industry
	}
	return name
}

func actorOr(actor, fallback string) string {
	if actor != "" {
		return actor
	}
	return fallback
}
