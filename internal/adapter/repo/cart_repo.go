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

// SQLCartRepo stores identity carts. Save replaces the whole cart in one
// transaction, so concurrent tabs resolve last-write-wins without ever
// leaving a half-written cart.
type SQLCartRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLCartRepo(db *sql.DB) *SQLCartRepo { return &SQLCartRepo{db: db, now: time.Now} }

func (r *SQLCartRepo) Load(ctx context.Context, identityID string) (domain.Cart, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT product_id, quantity, unit_price, unit_sale_price FROM cart_items
WHERE identity_id = ? ORDER BY position`, identityID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart: %w", translate(err))
	}
	defer rows.Close()
	c := domain.Cart{Items: []domain.CartItem{}}
	for rows.Next() {
		var (
			it   domain.CartItem
			sale decimal.NullDecimal
		)
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice, &sale); err != nil {
			return domain.Cart{}, err
		}
		if sale.Valid {
			v := sale.Decimal
			it.UnitSalePrice = &v
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

func (r *SQLCartRepo) Save(ctx context.Context, identityID string, c domain.Cart) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE identity_id = ?`, identityID); err != nil {
		return translate(err)
	}
	now := ts(r.now())
	for i, it := range c.Items {
		if it.Quantity <= 0 {
			continue
		}
		var sale any
		if it.UnitSalePrice != nil {
			sale = *it.UnitSalePrice
		}
		if _, err = tx.ExecContext(ctx, `
INSERT INTO cart_items (identity_id, position, product_id, quantity, unit_price, unit_sale_price, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			identityID, i, it.ProductID, it.Quantity, it.UnitPrice, sale, now); err != nil {
			return translate(err)
		}
	}
	return translate(tx.Commit())
}

func (r *SQLCartRepo) Delete(ctx context.Context, identityID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE identity_id = ?`, identityID)
	return translate(err)
}

var _ usecase.CartRepo = (*SQLCartRepo)(nil)
