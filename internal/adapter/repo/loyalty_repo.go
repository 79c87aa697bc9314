package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/shopspring/decimal"
)

type loyaltyWriter struct{ q dbtx }

// award appends the entry unless one already exists for (order_id, reason).
// The unique index catches the race the NOT EXISTS check can miss.
func (w loyaltyWriter) award(ctx context.Context, e domain.LoyaltyEntry) (bool, error) {
	if e.Delta <= 0 {
		return false, fmt.Errorf("loyalty delta must be positive, got %d", e.Delta)
	}
	res, err := w.q.ExecContext(ctx, `
INSERT INTO loyalty_ledger (identity_id, delta, reason, order_id, created_at)
SELECT ?, ?, ?, ?, ?
WHERE NOT EXISTS (SELECT 1 FROM loyalty_ledger WHERE order_id = ? AND reason = ?)`,
		e.IdentityID, e.Delta, e.Reason, e.OrderID, ts(e.CreatedAt), e.OrderID, e.Reason)
	if err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

type SQLLoyaltyRepo struct{ db *sql.DB }

func NewSQLLoyaltyRepo(db *sql.DB) *SQLLoyaltyRepo { return &SQLLoyaltyRepo{db: db} }

func (r *SQLLoyaltyRepo) Award(ctx context.Context, e domain.LoyaltyEntry) (bool, error) {
	return loyaltyWriter{q: r.db}.award(ctx, e)
}

func (r *SQLLoyaltyRepo) Balance(ctx context.Context, identityID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM loyalty_ledger WHERE identity_id = ?`, identityID).Scan(&n)
	return n, err
}

func (r *SQLLoyaltyRepo) Entries(ctx context.Context, identityID string) ([]domain.LoyaltyEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT identity_id, delta, reason, order_id, created_at FROM loyalty_ledger
WHERE identity_id = ? ORDER BY id`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.LoyaltyEntry
	for rows.Next() {
		var (
			e  domain.LoyaltyEntry
			at scanTime
		)
		if err := rows.Scan(&e.IdentityID, &e.Delta, &e.Reason, &e.OrderID, &at); err != nil {
			return nil, err
		}
		e.CreatedAt = at.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

type SQLReferralRepo struct{ db *sql.DB }

func NewSQLReferralRepo(db *sql.DB) *SQLReferralRepo { return &SQLReferralRepo{db: db} }

// Create records a pending referral of referredID by referrerID.
func (r *SQLReferralRepo) Create(ctx context.Context, referrerID, referredID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO referrals (referrer_id, referred_id, status, created_at) VALUES (?, ?, ?, ?)`,
		referrerID, referredID, string(domain.ReferralPending), ts(at))
	if err != nil && isDuplicate(err) {
		return fmt.Errorf("referral for %s: %w", referredID, usecase.ErrDuplicate)
	}
	return err
}

// Complete flips the pending referral and credits the referrer in one
// transaction. A second call finds nothing pending and reports false, as does
// a call for an order placed after another live order of at least minTotal:
// only the shopper's first qualifying order completes the referral.
func (r *SQLReferralRepo) Complete(ctx context.Context, referredID, orderID string, minTotal decimal.Decimal, bonus int64, at time.Time) (done bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, translate(err)
	}
	defer func() {
		if err != nil || !done {
			_ = tx.Rollback()
		}
	}()

	var earlier int
	err = tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM orders prior
JOIN orders cur ON cur.id = ?
WHERE prior.identity_id = ? AND prior.id <> cur.id AND prior.status <> ? AND prior.total >= ?
  AND (prior.created_at < cur.created_at OR (prior.created_at = cur.created_at AND prior.id < cur.id))`,
		orderID, referredID, string(domain.StatusCancelled), minTotal).Scan(&earlier)
	if err != nil {
		return false, translate(err)
	}
	if earlier > 0 {
		return false, nil
	}

	res, err := tx.ExecContext(ctx, `
UPDATE referrals SET status = ?, completed_order_id = ?, completed_at = ?
WHERE referred_id = ? AND status = ?`,
		string(domain.ReferralCompleted), orderID, ts(at), referredID, string(domain.ReferralPending))
	if err != nil {
		return false, translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	var referrer string
	if err := tx.QueryRowContext(ctx, `SELECT referrer_id FROM referrals WHERE referred_id = ?`, referredID).Scan(&referrer); err != nil {
		return false, translate(err)
	}
	if bonus > 0 {
		if _, err := (loyaltyWriter{q: tx}).award(ctx, domain.LoyaltyEntry{
			IdentityID: referrer,
			Delta:      bonus,
			Reason:     domain.ReasonReferralBonus,
			OrderID:    orderID,
			CreatedAt:  at,
		}); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, translate(err)
	}
	return true, nil
}

func (r *SQLReferralRepo) Get(ctx context.Context, referredID string) (*domain.Referral, error) {
	var (
		ref       domain.Referral
		status    string
		orderID   sql.NullString
		created   scanTime
		completed scanTime
	)
	err := r.db.QueryRowContext(ctx, `
SELECT referrer_id, referred_id, status, completed_order_id, created_at, completed_at
FROM referrals WHERE referred_id = ?`, referredID).
		Scan(&ref.ReferrerID, &ref.ReferredID, &status, &orderID, &created, &completed)
	if err != nil {
		return nil, translate(err)
	}
	ref.Status = domain.ReferralStatus(status)
	ref.CompletedOrderID = orderID.String
	ref.CreatedAt = created.Time
	ref.CompletedAt = completed.ptr()
	return &ref, nil
}

var _ usecase.LoyaltyRepo = (*SQLLoyaltyRepo)(nil)
var _ usecase.ReferralRepo = (*SQLReferralRepo)(nil)
