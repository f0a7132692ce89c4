package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/soundcrate/soundcrate/internal/domain/plan"
)

// GetSubscription returns the user's subscription. Users without a
// subscription row are on the free plan with no expiry.
func (s *Store) GetSubscription(ctx context.Context, userID string) (*plan.Subscription, error) {
	return s.getSubscription(ctx, s.db.QueryRowContext, userID)
}

func (s *Store) getSubscriptionTx(ctx context.Context, tx *sql.Tx, userID string) (*plan.Subscription, error) {
	return s.getSubscription(ctx, tx.QueryRowContext, userID)
}

type queryRowFn func(ctx context.Context, query string, args ...any) *sql.Row

func (s *Store) getSubscription(ctx context.Context, queryRow queryRowFn, userID string) (*plan.Subscription, error) {
	var sub plan.Subscription
	err := queryRow(ctx,
		`SELECT user_id, plan, status, expires_at FROM subscriptions WHERE user_id = ?`, userID).
		Scan(&sub.UserID, &sub.Plan, &sub.Status, &sub.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Free tier needs no billing record.
		return &plan.Subscription{
			UserID:    userID,
			Plan:      plan.PlanFree,
			Status:    plan.StatusActive,
			ExpiresAt: s.now().Add(100 * 365 * 24 * time.Hour),
		}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query subscription")
	}
	return &sub, nil
}

// PutSubscription inserts or replaces the user's subscription.
func (s *Store) PutSubscription(ctx context.Context, sub *plan.Subscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, plan, status, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			plan = excluded.plan, status = excluded.status, expires_at = excluded.expires_at`,
		sub.UserID, sub.Plan, sub.Status, sub.ExpiresAt)
	return errors.Wrap(err, "failed to save subscription")
}
