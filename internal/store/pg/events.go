package pg

import (
	"context"

	"provisioner/internal/domain"
	"provisioner/internal/store"
)

// ClaimEvent atomically takes ownership of a payment event id.
// A failed attempt, or a processing one not touched within StaleAfter, is reclaimed.
func (s *Store) ClaimEvent(ctx context.Context, in store.EventClaimRequest) (domain.EventClaim, error) {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO payment_events (event_id, event_type, status, attempts, created_at, updated_at)
		VALUES ($1,$2,$3,1,$4,$4)
		ON CONFLICT (event_id) DO NOTHING
	`, in.EventID, in.EventType, string(domain.EventProcessing), in.Now)
	if err != nil {
		return 0, err
	}
	if ct.RowsAffected() == 1 {
		return domain.ClaimAcquired, nil
	}

	ct, err = s.DB.Exec(ctx, `
		UPDATE payment_events
		SET status=$2, error=NULL, attempts=attempts+1, updated_at=$3
		WHERE event_id=$1 AND (status='failed' OR (status='processing' AND updated_at < $4))
	`, in.EventID, string(domain.EventProcessing), in.Now, in.Now.Add(-in.StaleAfter))
	if err != nil {
		return 0, err
	}
	if ct.RowsAffected() == 1 {
		return domain.ClaimAcquired, nil
	}

	var status string
	if err := s.DB.QueryRow(ctx, `SELECT status FROM payment_events WHERE event_id=$1`, in.EventID).Scan(&status); err != nil {
		return 0, err
	}
	if domain.EventStatus(status) == domain.EventCompleted {
		return domain.ClaimCompleted, nil
	}
	return domain.ClaimInProgress, nil
}

func (s *Store) FinishEvent(ctx context.Context, in store.EventResult) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE payment_events SET status=$2, error=$3, updated_at=$4 WHERE event_id=$1
	`, in.EventID, string(in.Status), nullIfEmpty(in.Error), in.Now)
	return err
}
