// Package repotest opens a throwaway SQLite database with the production
// schema so SQL adapters and use cases can be tested without MySQL.
package repotest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	// pure-Go driver, registered as "sqlite"
	_ "modernc.org/sqlite"
)

// Mirrors migrations/mysql/0001_init.sql in SQLite types.
const schema = `
CREATE TABLE products (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL,
  price      DECIMAL(12,2) NOT NULL,
  sale_price DECIMAL(12,2),
  active     INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE stock (
  product_id TEXT PRIMARY KEY REFERENCES products(id),
  available  INTEGER NOT NULL CHECK (available >= 0),
  updated_at TEXT NOT NULL
);
CREATE TABLE cart_items (
  identity_id     TEXT NOT NULL,
  position        INTEGER NOT NULL,
  product_id      TEXT NOT NULL,
  quantity        INTEGER NOT NULL CHECK (quantity > 0),
  unit_price      DECIMAL(12,2) NOT NULL,
  unit_sale_price DECIMAL(12,2),
  updated_at      TEXT NOT NULL,
  PRIMARY KEY (identity_id, product_id)
);
CREATE TABLE orders (
  id               TEXT PRIMARY KEY,
  identity_id      TEXT,
  status           TEXT NOT NULL,
  ship_name        TEXT NOT NULL,
  ship_email       TEXT NOT NULL,
  ship_phone       TEXT NOT NULL DEFAULT '',
  ship_address     TEXT NOT NULL,
  ship_city        TEXT NOT NULL,
  ship_postal_code TEXT NOT NULL,
  ship_country     TEXT NOT NULL,
  payment_method   TEXT NOT NULL,
  payment_ref      TEXT,
  notes            TEXT,
  promo_code       TEXT,
  subtotal         DECIMAL(12,2) NOT NULL,
  discount         DECIMAL(12,2) NOT NULL,
  shipping_cost    DECIMAL(12,2) NOT NULL,
  total            DECIMAL(12,2) NOT NULL,
  idempotency_key  TEXT,
  created_at       TEXT NOT NULL,
  updated_at       TEXT NOT NULL,
  UNIQUE (idempotency_key)
);
CREATE TABLE order_items (
  order_id   TEXT NOT NULL REFERENCES orders(id),
  position   INTEGER NOT NULL,
  product_id TEXT NOT NULL,
  name       TEXT NOT NULL,
  unit_price DECIMAL(12,2) NOT NULL,
  quantity   INTEGER NOT NULL,
  PRIMARY KEY (order_id, position)
);
CREATE TABLE promo_codes (
  code       TEXT PRIMARY KEY,
  kind       TEXT NOT NULL,
  value      DECIMAL(12,2) NOT NULL,
  expires_at TEXT,
  max_uses   INTEGER,
  used_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE outbox (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  channel         TEXT NOT NULL,
  payload         BLOB NOT NULL,
  status          TEXT NOT NULL,
  retry_count     INTEGER NOT NULL DEFAULT 0,
  next_attempt_at TEXT NOT NULL,
  last_error      TEXT,
  created_at      TEXT NOT NULL,
  sent_at         TEXT
);
CREATE TABLE loyalty_ledger (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  identity_id TEXT NOT NULL,
  delta       INTEGER NOT NULL CHECK (delta > 0),
  reason      TEXT NOT NULL,
  order_id    TEXT NOT NULL,
  created_at  TEXT NOT NULL,
  UNIQUE (order_id, reason)
);
CREATE TABLE referrals (
  referrer_id        TEXT NOT NULL,
  referred_id        TEXT PRIMARY KEY,
  status             TEXT NOT NULL,
  completed_order_id TEXT,
  created_at         TEXT NOT NULL,
  completed_at       TEXT
);
`

// same fixed-width layout the repo package writes
const tsLayout = "2006-01-02 15:04:05.000000"

// Open returns a fresh database in t's temp dir, closed on cleanup.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkout.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	// one writer; concurrent callers queue on the pool like they would on row locks
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

type Product struct {
	ID        string
	Name      string
	Price     string
	SalePrice string // empty for none
	Active    bool
	Stock     int
}

// SeedProducts inserts catalog rows with their stock.
func SeedProducts(t testing.TB, db *sql.DB, products ...Product) {
	t.Helper()
	now := time.Now().UTC().Format(tsLayout)
	for _, p := range products {
		var sale any
		if p.SalePrice != "" {
			sale = decimal.RequireFromString(p.SalePrice)
		}
		active := 0
		if p.Active {
			active = 1
		}
		_, err := db.Exec(`INSERT INTO products (id, name, price, sale_price, active) VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.Name, decimal.RequireFromString(p.Price), sale, active)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO stock (product_id, available, updated_at) VALUES (?, ?, ?)`, p.ID, p.Stock, now)
		require.NoError(t, err)
	}
}

type Promo struct {
	Code      string
	Kind      string
	Value     string
	ExpiresAt *time.Time
	MaxUses   *int
	UsedCount int
}

func SeedPromo(t testing.TB, db *sql.DB, p Promo) {
	t.Helper()
	var expires any
	if p.ExpiresAt != nil {
		expires = p.ExpiresAt.UTC().Format(tsLayout)
	}
	var maxUses any
	if p.MaxUses != nil {
		maxUses = *p.MaxUses
	}
	_, err := db.Exec(`INSERT INTO promo_codes (code, kind, value, expires_at, max_uses, used_count) VALUES (?, ?, ?, ?, ?, ?)`,
		p.Code, p.Kind, decimal.RequireFromString(p.Value), expires, maxUses, p.UsedCount)
	require.NoError(t, err)
}

// Stock reads the current available count.
func Stock(t testing.TB, db *sql.DB, productID string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(),
		`SELECT available FROM stock WHERE product_id = ?`, productID).Scan(&n))
	return n
}

// Count runs SELECT COUNT(*) FROM table [WHERE where].
func Count(t testing.TB, db *sql.DB, table, where string, args ...any) int {
	t.Helper()
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	require.NoError(t, db.QueryRow(q, args...).Scan(&n))
	return n
}
