package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/aq2208/gcheckout-api/internal/usecase"
)

// SQLUnitOfWork runs a use case callback inside one database transaction.
type SQLUnitOfWork struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLUnitOfWork(db *sql.DB) *SQLUnitOfWork { return &SQLUnitOfWork{db: db, now: time.Now} }

func (u *SQLUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx usecase.Tx) error) (err error) {
	sqlTx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", translate(err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				logging.FromCtx(ctx).Warn("rollback failed", "err", rbErr)
			}
		}
	}()

	if err = fn(ctx, txScope{q: sqlTx, now: u.now}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}
	return nil
}

type txScope struct {
	q   dbtx
	now func() time.Time
}

func (t txScope) Stock() usecase.StockWriter   { return stockRepo{q: t.q, now: t.now} }
func (t txScope) Orders() usecase.OrderWriter  { return orderRepo{q: t.q} }
func (t txScope) Promos() usecase.PromoWriter  { return promoWriter{q: t.q} }
func (t txScope) Outbox() usecase.OutboxWriter { return outboxWriter{q: t.q, now: t.now} }

var _ usecase.UnitOfWork = (*SQLUnitOfWork)(nil)
