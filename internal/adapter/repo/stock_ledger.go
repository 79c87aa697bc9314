package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/usecase"
)

// stockRepo runs ledger statements on either the pool or a transaction.
type stockRepo struct {
	q   dbtx
	now func() time.Time
}

func (r stockRepo) available(ctx context.Context, productID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT available FROM stock WHERE product_id = ?`, productID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// DecrementIfAvailable is one conditional UPDATE; the row never goes below
// zero and nothing is read before the write.
func (r stockRepo) DecrementIfAvailable(ctx context.Context, productID string, qty int) (domain.DecrementResult, error) {
	if qty <= 0 {
		return domain.DecrementResult{}, fmt.Errorf("decrement %s: quantity must be positive, got %d", productID, qty)
	}
	res, err := r.q.ExecContext(ctx, `
UPDATE stock SET available = available - ?, updated_at = ?
WHERE product_id = ? AND available >= ?`,
		qty, ts(r.now()), productID, qty)
	if err != nil {
		return domain.DecrementResult{}, translate(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return domain.DecrementResult{}, err
	}
	remaining, err := r.available(ctx, productID)
	if err != nil {
		return domain.DecrementResult{}, translate(err)
	}
	return domain.DecrementResult{OK: rows == 1, Remaining: remaining}, nil
}

func (r stockRepo) Restock(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return nil
	}
	_, err := r.q.ExecContext(ctx, `
UPDATE stock SET available = available + ?, updated_at = ? WHERE product_id = ?`,
		qty, ts(r.now()), productID)
	return translate(err)
}

// MySQLStockLedger is the authoritative per-product stock count.
type MySQLStockLedger struct {
	db *sql.DB
	stockRepo
}

func NewMySQLStockLedger(db *sql.DB) *MySQLStockLedger {
	return &MySQLStockLedger{db: db, stockRepo: stockRepo{q: db, now: time.Now}}
}

func (l *MySQLStockLedger) Available(ctx context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT product_id, available FROM stock WHERE product_id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("stock available: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (l *MySQLStockLedger) CheckAvailable(ctx context.Context, productID string, qty int) (bool, error) {
	n, err := l.available(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("check available %s: %w", productID, err)
	}
	return n >= qty, nil
}

// BulkSet writes absolute counts row by row. Unknown products are reported
// per row and do not abort the batch.
func (l *MySQLStockLedger) BulkSet(ctx context.Context, items []domain.StockAdjustment) (domain.BulkSetResult, error) {
	res := domain.BulkSetResult{Errors: []domain.BulkSetError{}}
	for _, it := range items {
		ok, err := l.setOne(ctx, it)
		if err != nil {
			return res, fmt.Errorf("bulk set %s: %w", it.ProductID, err)
		}
		if !ok {
			res.Errors = append(res.Errors, domain.BulkSetError{ProductID: it.ProductID, Reason: "unknown product"})
			continue
		}
		res.UpdatedCount++
	}
	return res, nil
}

func (l *MySQLStockLedger) setOne(ctx context.Context, it domain.StockAdjustment) (bool, error) {
	now := ts(l.now())
	r, err := l.db.ExecContext(ctx, `UPDATE stock SET available = ?, updated_at = ? WHERE product_id = ?`,
		it.Stock, now, it.ProductID)
	if err != nil {
		return false, err
	}
	if n, _ := r.RowsAffected(); n > 0 {
		return true, nil
	}

	var exists int
	err = l.db.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ?`, it.ProductID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// product without a ledger row yet
	if _, err := l.db.ExecContext(ctx, `INSERT INTO stock (product_id, available, updated_at) VALUES (?, ?, ?)`,
		it.ProductID, it.Stock, now); err != nil {
		if isDuplicate(err) {
			return l.setOne(ctx, it)
		}
		return false, err
	}
	return true, nil
}

var _ usecase.StockLedger = (*MySQLStockLedger)(nil)
var _ usecase.StockWriter = stockRepo{}
