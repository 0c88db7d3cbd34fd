package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"provisioner/internal/domain"
	"provisioner/internal/store"
)

func (s *Store) UpsertCustomer(ctx context.Context, c domain.Customer) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO customers (id, name, plan, status, monthly_calls_limit, payment_customer_id, subscription_id, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name,''), customers.name),
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			monthly_calls_limit = EXCLUDED.monthly_calls_limit,
			payment_customer_id = COALESCE(EXCLUDED.payment_customer_id, customers.payment_customer_id),
			subscription_id = COALESCE(EXCLUDED.subscription_id, customers.subscription_id),
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.Name, c.Plan, string(c.Status), c.MonthlyCallsLimit,
		nullIfEmpty(c.PaymentCustomerID), nullIfEmpty(c.SubscriptionID), c.UpdatedAt)
	return err
}

func (s *Store) GetCustomer(ctx context.Context, id string) (domain.Customer, bool, error) {
	var c domain.Customer
	var status string
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, plan, status, monthly_calls_limit, COALESCE(payment_customer_id,''), COALESCE(subscription_id,''), updated_at
		FROM customers WHERE id=$1
	`, id).Scan(&c.ID, &c.Name, &c.Plan, &status, &c.MonthlyCallsLimit, &c.PaymentCustomerID, &c.SubscriptionID, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Customer{}, false, nil
		}
		return domain.Customer{}, false, err
	}
	c.Status = domain.SubscriptionStatus(status)
	return c, true, nil
}

func (s *Store) UpdateSubscriptionStatus(ctx context.Context, in store.SubscriptionUpdate) (bool, error) {
	q := `
		UPDATE customers
		SET status=$2, subscription_id=COALESCE(NULLIF($3::text,''), subscription_id), updated_at=$4
		WHERE payment_customer_id=$1`
	args := []any{in.PaymentCustomerID, string(in.Status), in.SubscriptionID, in.Now}
	if len(in.OnlyFrom) > 0 {
		from := make([]string, 0, len(in.OnlyFrom))
		for _, st := range in.OnlyFrom {
			from = append(from, string(st))
		}
		q += ` AND status = ANY($5)`
		args = append(args, from)
	}
	ct, err := s.DB.Exec(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}
