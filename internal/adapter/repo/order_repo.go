package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/shopspring/decimal"
)

type orderRepo struct{ q dbtx }

// Create inserts the order header and its items. Run it inside a transaction.
// idemKey is unique across all orders, so callers scope it to the shopper.
func (r orderRepo) Create(ctx context.Context, o *domain.Order, idemKey string) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO orders (id, identity_id, status, ship_name, ship_email, ship_phone, ship_address, ship_city,
  ship_postal_code, ship_country, payment_method, payment_ref, notes, promo_code,
  subtotal, discount, shipping_cost, total, idempotency_key, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, nullString(o.IdentityID), string(o.Status),
		o.Shipping.Name, o.Shipping.Email, o.Shipping.Phone, o.Shipping.Address, o.Shipping.City,
		o.Shipping.PostalCode, o.Shipping.Country,
		o.PaymentMethod, nullString(o.PaymentRef), nullString(o.Notes), nullString(o.PromoCode),
		o.Subtotal, o.Discount, o.ShippingCost, o.Total, nullString(idemKey),
		ts(o.CreatedAt), ts(o.UpdatedAt),
	)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %v", usecase.ErrDuplicate, err)
		}
		return translate(err)
	}
	for i, it := range o.Items {
		if _, err := r.q.ExecContext(ctx, `
INSERT INTO order_items (order_id, position, product_id, name, unit_price, quantity)
VALUES (?, ?, ?, ?, ?, ?)`,
			o.ID, i, it.ProductID, it.Name, it.UnitPrice, it.Quantity); err != nil {
			return translate(err)
		}
	}
	return nil
}

func (r orderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var (
		o                                   domain.Order
		identity, payRef, notes, promo      sql.NullString
		status                              string
		created, updated                    scanTime
		subtotal, discount, shipping, total decimal.Decimal
	)
	err := r.q.QueryRowContext(ctx, `
SELECT id, identity_id, status, ship_name, ship_email, ship_phone, ship_address, ship_city,
  ship_postal_code, ship_country, payment_method, payment_ref, notes, promo_code,
  subtotal, discount, shipping_cost, total, created_at, updated_at
FROM orders WHERE id = ?`, id).Scan(
		&o.ID, &identity, &status,
		&o.Shipping.Name, &o.Shipping.Email, &o.Shipping.Phone, &o.Shipping.Address, &o.Shipping.City,
		&o.Shipping.PostalCode, &o.Shipping.Country,
		&o.PaymentMethod, &payRef, &notes, &promo,
		&subtotal, &discount, &shipping, &total, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, usecase.ErrNotFound)
	}
	if err != nil {
		return nil, translate(err)
	}
	o.IdentityID = identity.String
	o.Status = domain.Status(status)
	o.PaymentRef = payRef.String
	o.Notes = notes.String
	o.PromoCode = promo.String
	o.Subtotal, o.Discount, o.ShippingCost, o.Total = subtotal, discount, shipping, total
	o.CreatedAt, o.UpdatedAt = created.Time, updated.Time

	rows, err := r.q.QueryContext(ctx, `
SELECT product_id, name, unit_price, quantity FROM order_items WHERE order_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

// GetByIdempotencyKey finds the order a commit with idemKey produced.
func (r orderRepo) GetByIdempotencyKey(ctx context.Context, idemKey string) (*domain.Order, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE idempotency_key = ?`, idemKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order for key %s: %w", idemKey, usecase.ErrNotFound)
	}
	if err != nil {
		return nil, translate(err)
	}
	return r.GetByID(ctx, id)
}

// UpdateStatusIf changes the status only if it still equals from.
func (r orderRepo) UpdateStatusIf(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
UPDATE orders SET status = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		string(to), ts(at), id, string(from))
	if err != nil {
		return false, translate(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	// rows == 0: not found or status moved on
	return rows > 0, nil
}

// MySQLOrderRepo is the read side used outside transactions.
type MySQLOrderRepo struct{ orderRepo }

func NewMySQLOrderRepo(db *sql.DB) *MySQLOrderRepo { return &MySQLOrderRepo{orderRepo{q: db}} }

var _ usecase.OrderReader = (*MySQLOrderRepo)(nil)
var _ usecase.OrderWriter = orderRepo{}
