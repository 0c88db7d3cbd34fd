package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"provisioner/internal/domain"
	"provisioner/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) Ping(ctx context.Context) error { return s.DB.Ping(ctx) }

const orderColumns = `
	id, customer_id, customer_name, company_name, industry, plan,
	COALESCE(payment_customer_id,''), COALESCE(checkout_session_id,''), COALESCE(subscription_id,''),
	callback_phone, carrier, channels_json, response_mode, COALESCE(voice_id,''), COALESCE(details,''),
	COALESCE(agent_id,''), agent_config_json, COALESCE(phone_number,''), COALESCE(phone_number_sid,''),
	forwarding_confirmed, setup_status, verification_json, COALESCE(setup_actor,''),
	created_at, paid_at, setup_started_at, agent_ready_at, activated_at, suspended_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o                       domain.Order
		channels, agent, verify []byte
		mode, status            string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.CustomerName, &o.CompanyName, &o.Industry, &o.Plan,
		&o.PaymentCustomerID, &o.CheckoutSessionID, &o.SubscriptionID,
		&o.CallbackPhone, &o.Carrier, &channels, &mode, &o.VoiceID, &o.Details,
		&o.AgentID, &agent, &o.PhoneNumber, &o.PhoneNumberSID,
		&o.ForwardingConfirmed, &status, &verify, &o.SetupActor,
		&o.Timeline.CreatedAt, &o.Timeline.PaidAt, &o.Timeline.SetupStartedAt, &o.Timeline.AgentReadyAt,
		&o.Timeline.ActivatedAt, &o.Timeline.SuspendedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.ResponseMode = domain.ResponseMode(mode)
	o.Status = domain.Status(status)
	if err := json.Unmarshal(channels, &o.Channels); err != nil {
		return domain.Order{}, fmt.Errorf("decode channels: %w", err)
	}
	if err := json.Unmarshal(agent, &o.Agent); err != nil {
		return domain.Order{}, fmt.Errorf("decode agent config: %w", err)
	}
	if err := json.Unmarshal(verify, &o.Verification); err != nil {
		return domain.Order{}, fmt.Errorf("decode verification: %w", err)
	}
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, bool, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}
	return o, true, nil
}

func (s *Store) GetOrderByCheckoutSession(ctx context.Context, sessionID string) (domain.Order, bool, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE checkout_session_id=$1`, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}
	return o, true, nil
}

func (s *Store) ListOrders(ctx context.Context, statuses []domain.Status) ([]domain.Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at ASC`)
	} else {
		ss := make([]string, 0, len(statuses))
		for _, st := range statuses {
			ss = append(ss, string(st))
		}
		rows, err = s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE setup_status = ANY($1) ORDER BY created_at ASC`, ss)
	}
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) ListCustomerOrders(ctx context.Context, customerID string) ([]domain.Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	out := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) SetAgent(ctx context.Context, in store.AgentUpdate) error {
	cfg, err := json.Marshal(in.Config)
	if err != nil {
		return err
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET agent_id=$2, agent_config_json=$3, updated_at=$4 WHERE id=$1
	`, in.OrderID, in.AgentID, cfg, in.Now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetNumber(ctx context.Context, in store.NumberUpdate) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET phone_number=$2, phone_number_sid=$3, updated_at=$4 WHERE id=$1
	`, in.OrderID, in.Number, nullIfEmpty(in.SID), in.Now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetForwarding(ctx context.Context, id string, confirmed bool, now time.Time) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET forwarding_confirmed=$2, updated_at=$3 WHERE id=$1
	`, id, confirmed, now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetVerification(ctx context.Context, id string, v domain.Verification, now time.Time) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET verification_json=$2, updated_at=$3 WHERE id=$1
	`, id, b, now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ChangeStatus moves an order from in.From to in.To only if it is still in in.From.
// Statuses that need provisioned resources are guarded in SQL as well.
// Timeline stamps are written once and never overwritten.
func (s *Store) ChangeStatus(ctx context.Context, in store.StatusChange) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders
		SET setup_status=$3::text,
		    updated_at=$4,
		    setup_started_at = CASE WHEN $3::text='setup_in_progress' THEN COALESCE(setup_started_at, $4) ELSE setup_started_at END,
		    setup_actor      = CASE WHEN $3::text='setup_in_progress' AND $5::text <> '' THEN $5::text ELSE setup_actor END,
		    agent_ready_at   = CASE WHEN $3::text='waiting_activation' THEN COALESCE(agent_ready_at, $4) ELSE agent_ready_at END,
		    activated_at     = CASE WHEN $3::text='active' THEN COALESCE(activated_at, $4) ELSE activated_at END,
		    suspended_at     = CASE WHEN $3::text='suspended' THEN COALESCE(suspended_at, $4) ELSE suspended_at END
		WHERE id=$1 AND setup_status=$2::text
		  AND ($3::text NOT IN ('waiting_activation','active') OR (agent_id IS NOT NULL AND phone_number IS NOT NULL))
	`, in.OrderID, string(in.From), string(in.To), in.Now, in.Actor)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, o domain.Order) (bool, error) {
	channels, err := json.Marshal(o.Channels)
	if err != nil {
		return false, err
	}
	agent, _ := json.Marshal(o.Agent)
	verify, _ := json.Marshal(o.Verification)
	ct, err := tx.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, customer_name, company_name, industry, plan,
			payment_customer_id, checkout_session_id, subscription_id,
			callback_phone, carrier, channels_json, response_mode, voice_id, details,
			agent_config_json, verification_json, setup_status, created_at, paid_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$19)
		ON CONFLICT (checkout_session_id) DO NOTHING
	`, o.ID, o.CustomerID, o.CustomerName, o.CompanyName, o.Industry, o.Plan,
		nullIfEmpty(o.PaymentCustomerID), nullIfEmpty(o.CheckoutSessionID), nullIfEmpty(o.SubscriptionID),
		o.CallbackPhone, o.Carrier, channels, string(o.ResponseMode), nullIfEmpty(o.VoiceID), nullIfEmpty(o.Details),
		agent, verify, string(o.Status), o.Timeline.CreatedAt, o.Timeline.PaidAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
