package repo

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/shopspring/decimal"
)

// SQLCatalog reads the local product snapshot kept in sync by the catalog
// service. This service never writes it.
type SQLCatalog struct{ db *sql.DB }

func NewSQLCatalog(db *sql.DB) *SQLCatalog { return &SQLCatalog{db: db} }

func (c *SQLCatalog) Products(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, price, sale_price, active FROM products WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p    domain.Product
			sale decimal.NullDecimal
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &sale, &p.Active); err != nil {
			return nil, err
		}
		if sale.Valid {
			v := sale.Decimal
			p.SalePrice = &v
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

var _ usecase.Catalog = (*SQLCatalog)(nil)
