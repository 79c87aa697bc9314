package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aq2208/gcheckout-api/internal/pricing"
	"github.com/aq2208/gcheckout-api/internal/usecase"
)

type promoWriter struct{ q dbtx }

// Consume is a guarded increment: it only counts a use while the code is
// unexpired and below its cap, so concurrent commits cannot overrun it.
func (w promoWriter) Consume(ctx context.Context, code string, now time.Time) (bool, error) {
	res, err := w.q.ExecContext(ctx, `
UPDATE promo_codes SET used_count = used_count + 1
WHERE code = ?
  AND (expires_at IS NULL OR expires_at > ?)
  AND (max_uses IS NULL OR used_count < max_uses)`, code, ts(now))
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

type SQLPromoRepo struct{ db *sql.DB }

func NewSQLPromoRepo(db *sql.DB) *SQLPromoRepo { return &SQLPromoRepo{db: db} }

func (r *SQLPromoRepo) FindPromo(ctx context.Context, code string) (*pricing.Promo, error) {
	var (
		p       pricing.Promo
		kind    string
		expires scanTime
		maxUses sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
SELECT code, kind, value, expires_at, max_uses, used_count FROM promo_codes WHERE code = ?`, code).
		Scan(&p.Code, &kind, &p.Value, &expires, &maxUses, &p.UsedCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("promo %s: %w", code, err)
	}
	p.Kind = pricing.PromoKind(kind)
	p.ExpiresAt = expires.ptr()
	if maxUses.Valid {
		n := int(maxUses.Int64)
		p.MaxUses = &n
	}
	return &p, nil
}

var _ pricing.PromoLookup = (*SQLPromoRepo)(nil)
var _ usecase.PromoWriter = promoWriter{}
