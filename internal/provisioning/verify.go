package provisioning

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"provisioner/internal/domain"
	"provisioner/internal/observability"
	"provisioner/internal/orders"
	"provisioner/internal/providers/twilio"
	"provisioner/internal/providers/vapi"
	"provisioner/internal/util"
)

// ManualSIDPrefix marks numbers attached by an operator rather than bought
// through the carrier; they are verified against the agent platform instead.
const ManualSIDPrefix = "manual-"

type Verifier struct {
	Orders   *orders.Repository
	Agents   AgentPlatform
	Carrier  Carrier
	Notifier Notifier
}

type VerifyResult struct {
	Order        domain.Order        `json:"order"`
	Verification domain.Verification `json:"verification"`
	AllGreen     bool                `json:"all_green"`
	Notified     bool                `json:"notified"`
}

// Verify re-checks the order's resources, stores the record and, when every
// check passes on an order still being set up, moves it to waiting_activation.
// Only the call that performs that transition sends "agent ready".
func (v *Verifier) Verify(ctx context.Context, orderID, actor string) (VerifyResult, error) {
	ord, err := v.Orders.Get(ctx, orderID)
	if err != nil {
		return VerifyResult{}, err
	}
	log := slog.With("order_id", ord.ID)

	rec := domain.Verification{}
	if ord.HasAgent() {
		rec.AgentCreated = v.agentExists(ctx, log, ord.AgentID)
	}
	// no functional test call is placed; the agent existing is the test
	rec.AgentTestPassed = rec.AgentCreated
	if ord.HasNumber() {
		rec.NumberPurchased = v.numberExists(ctx, log, ord)
	}
	rec.MessagingConnected = ord.EnabledChannels() > 0
	rec.WebhookConfigured = ord.HasAgent() && ord.HasNumber()
	now := util.NowUTC()
	rec.LastVerifiedAt = &now

	ord, err = v.Orders.RecordVerification(ctx, ord.ID, rec)
	if err != nil {
		return VerifyResult{}, err
	}
	res := VerifyResult{Order: ord, Verification: rec, AllGreen: rec.AllGreen()}
	if !res.AllGreen {
		observability.Verifications.WithLabelValues("incomplete").Inc()
		return res, nil
	}
	observability.Verifications.WithLabelValues("green").Inc()

	if ord.Status != domain.StatusPendingSetup && ord.Status != domain.StatusSetupInProgress {
		return res, nil
	}
	ord, changed, err := v.Orders.AdvanceTo(ctx, ord.ID, domain.StatusWaitingActivation, actorOr(actor, "verification"))
	if err != nil {
		return res, err
	}
	res.Order = ord
	if changed {
		res.Notified = sendAgentReady(ctx, v.Notifier, ord)
	}
	return res, nil
}

func (v *Verifier) agentExists(ctx context.Context, log *slog.Logger, agentID string) bool {
	if v.Agents == nil || !v.Agents.Configured() {
		log.Warn("agent platform not configured; agent unverified")
		return false
	}
	_, err := v.Agents.GetAssistant(ctx, agentID)
	if errors.Is(err, vapi.ErrAssistantNotFound) {
		log.Warn("voice agent missing on platform", "agent_id", agentID)
		return false
	}
	if err != nil {
		log.Warn("agent check failed", "agent_id", agentID, "err", err)
		return false
	}
	return true
}

func (v *Verifier) numberExists(ctx context.Context, log *slog.Logger, ord domain.Order) bool {
	if ord.PhoneNumberSID == "" || strings.HasPrefix(ord.PhoneNumberSID, ManualSIDPrefix) {
		if v.Agents == nil || !v.Agents.Configured() {
			return false
		}
		_, found, err := v.Agents.FindNumber(ctx, ord.PhoneNumber)
		if err != nil {
			log.Warn("number check on agent platform failed", "phone_number", ord.PhoneNumber, "err", err)
			return false
		}
		return found
	}
	if v.Carrier == nil || !v.Carrier.Configured() {
		log.Warn("carrier not configured; number unverified")
		return false
	}
	_, err := v.Carrier.Lookup(ctx, ord.PhoneNumberSID)
	if errors.Is(err, twilio.ErrNumberNotFound) {
		log.Warn("phone number missing at carrier", "sid", ord.PhoneNumberSID)
		return false
	}
	if err != nil {
		log.Warn("number check failed", "sid", ord.PhoneNumberSID, "err", err)
		return false
	}
	return true
}
