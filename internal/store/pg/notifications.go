package pg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"provisioner/internal/domain"
	"provisioner/internal/store"
)

func (s *Store) InsertNotification(ctx context.Context, in store.NotificationInsert) error {
	b, _ := json.Marshal(in.Vars)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO notifications (id, kind, recipient, order_id, vars_json, state, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
	`, in.ID, string(in.Kind), in.To, nullIfEmpty(in.OrderID), b, in.State, in.Now)
	return err
}

func (s *Store) GetNotification(ctx context.Context, id string) (store.Notification, error) {
	var n store.Notification
	var kind string
	var vars []byte
	err := s.DB.QueryRow(ctx, `
		SELECT id, kind, recipient, COALESCE(order_id,''), vars_json, state,
		       COALESCE(provider_msg_id,''), COALESCE(last_error,''), created_at, updated_at
		FROM notifications WHERE id=$1
	`, id).Scan(&n.ID, &kind, &n.To, &n.OrderID, &vars, &n.State, &n.ProviderMsgID, &n.LastError, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Notification{}, domain.ErrNotFound
	}
	if err != nil {
		return store.Notification{}, err
	}
	n.Kind = domain.NotificationKind(kind)
	_ = json.Unmarshal(vars, &n.Vars)
	return n, nil
}

// ClaimNotification moves a notification into processing.
// It allows reclaiming if the notification is still "processing" but stale.
func (s *Store) ClaimNotification(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE notifications
		SET state='processing', updated_at=$2
		WHERE id=$1 AND (state='queued' OR (state='processing' AND updated_at < $3))
	`, id, now, now.Add(-staleAfter))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) MarkNotification(ctx context.Context, in store.NotificationStateUpdate) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE notifications
		SET state=$2, provider_msg_id=COALESCE($3::text, provider_msg_id), last_error=$4, updated_at=$5
		WHERE id=$1
	`, in.ID, in.State, nullIfEmpty(in.ProviderMsgID), nullIfEmpty(in.LastError), in.Now)
	return err
}

func (s *Store) InsertAttempt(ctx context.Context, in store.ProviderAttempt) error {
	reqB, _ := json.Marshal(in.RequestJSON)
	respB, _ := json.Marshal(in.ResponseJSON)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO provider_attempts (notification_id, provider, provider_msg_id, http_status, error_msg, request_json, response_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, in.NotificationID, in.Provider, nullIfEmpty(in.ProviderMsgID), in.HTTPStatus, nullIfEmpty(in.ErrorMsg), reqB, respB)
	return err
}
