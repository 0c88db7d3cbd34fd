package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"provisioner/internal/domain"
)

const pendingColumns = `id, customer_id, customer_name, plan_id, payment_customer_id, config_json, created_at`

func scanPending(row scanner) (domain.PendingConfig, error) {
	var p domain.PendingConfig
	var cfg []byte
	if err := row.Scan(&p.ID, &p.CustomerID, &p.CustomerName, &p.PlanID, &p.PaymentCustomerID, &cfg, &p.CreatedAt); err != nil {
		return domain.PendingConfig{}, err
	}
	if err := json.Unmarshal(cfg, &p.Config); err != nil {
		return domain.PendingConfig{}, err
	}
	return p, nil
}

func (s *Store) InsertPending(ctx context.Context, p domain.PendingConfig) error {
	cfg, err := json.Marshal(p.Config)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO pending_configs (id, customer_id, customer_name, plan_id, payment_customer_id, config_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.CustomerID, p.CustomerName, p.PlanID, p.PaymentCustomerID, cfg, p.CreatedAt)
	return err
}

func (s *Store) GetPending(ctx context.Context, id string) (domain.PendingConfig, bool, error) {
	p, err := scanPending(s.DB.QueryRow(ctx, `SELECT `+pendingColumns+` FROM pending_configs WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PendingConfig{}, false, nil
		}
		return domain.PendingConfig{}, false, err
	}
	return p, true, nil
}

func (s *Store) FindLatestPending(ctx context.Context, customerID, paymentCustomerID string) (domain.PendingConfig, bool, error) {
	p, err := scanPending(s.DB.QueryRow(ctx, `
		SELECT `+pendingColumns+` FROM pending_configs
		WHERE customer_id=$1 AND payment_customer_id=$2
		ORDER BY created_at DESC
		LIMIT 1
	`, customerID, paymentCustomerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PendingConfig{}, false, nil
		}
		return domain.PendingConfig{}, false, err
	}
	return p, true, nil
}

// ConsumePending deletes the pending configuration and inserts the order in one transaction.
// created is false when the configuration was already consumed or an order exists for the
// same checkout session; nothing is changed in that case.
func (s *Store) ConsumePending(ctx context.Context, pendingID string, o domain.Order) (bool, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `DELETE FROM pending_configs WHERE id=$1`, pendingID)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	created, err := insertOrder(ctx, tx, o)
	if err != nil || !created {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
