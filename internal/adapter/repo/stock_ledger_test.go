package repo_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aq2208/gcheckout-api/internal/adapter/repo"
	"github.com/aq2208/gcheckout-api/internal/adapter/repo/repotest"
	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecrementIfAvailable_LastUnitHasOneWinner(t *testing.T) {
	db := repotest.Open(t)
	repotest.SeedProducts(t, db, repotest.Product{ID: "p1", Name: "Lamp", Price: "100", Active: true, Stock: 1})
	ledger := repo.NewMySQLStockLedger(db)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := ledger.DecrementIfAvailable(context.Background(), "p1", 1)
			assert.NoError(t, err)
			if r.OK {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 0, repotest.Stock(t, db, "p1"))
}

func TestDecrementIfAvailable_ManyCallersNeverOversell(t *testing.T) {
	db := repotest.Open(t)
	repotest.SeedProducts(t, db, repotest.Product{ID: "p1", Name: "Lamp", Price: "100", Active: true, Stock: 7})
	ledger := repo.NewMySQLStockLedger(db)

	var sold atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			qty := 1 + n%3
			r, err := ledger.DecrementIfAvailable(context.Background(), "p1", qty)
			assert.NoError(t, err)
			if r.OK {
				sold.Add(int32(qty))
			}
			assert.GreaterOrEqual(t, r.Remaining, 0)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 7-int(sold.Load()), repotest.Stock(t, db, "p1"))
	assert.GreaterOrEqual(t, repotest.Stock(t, db, "p1"), 0)
}

func TestDecrementIfAvailable_InsufficientLeavesRowUntouched(t *testing.T) {
	db := repotest.Open(t)
	repotest.SeedProducts(t, db, repotest.Product{ID: "p1", Name: "Lamp", Price: "100", Active: true, Stock: 1})
	ledger := repo.NewMySQLStockLedger(db)

	r, err := ledger.DecrementIfAvailable(context.Background(), "p1", 2)
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, 1, r.Remaining)
	assert.Equal(t, 1, repotest.Stock(t, db, "p1"))

	ok, err := ledger.CheckAvailable(context.Background(), "p1", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = ledger.CheckAvailable(context.Background(), "missing", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBulkSet_PartialSuccess(t *testing.T) {
	db := repotest.Open(t)
	repotest.SeedProducts(t, db,
		repotest.Product{ID: "p1", Name: "Lamp", Price: "100", Active: true, Stock: 1},
		repotest.Product{ID: "p2", Name: "Desk", Price: "900", Active: true, Stock: 4},
	)
	ledger := repo.NewMySQLStockLedger(db)

	res, err := ledger.BulkSet(context.Background(), []domain.StockAdjustment{
		{ProductID: "p1", Stock: 10},
		{ProductID: "ghost", Stock: 3},
		{ProductID: "p2", Stock: 4},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.UpdatedCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "ghost", res.Errors[0].ProductID)
	assert.Equal(t, 10, repotest.Stock(t, db, "p1"))
	assert.Equal(t, 4, repotest.Stock(t, db, "p2"))

	avail, err := ledger.Available(context.Background(), []string{"p1", "p2", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 10, "p2": 4}, avail)
}

func TestBulkSet_CreatesMissingLedgerRow(t *testing.T) {
	db := repotest.Open(t)
	_, err := db.Exec(`INSERT INTO products (id, name, price, active) VALUES ('p9', 'New', 5, 1)`)
	require.NoError(t, err)

	res, err := repo.NewMySQLStockLedger(db).BulkSet(context.Background(), []domain.StockAdjustment{{ProductID: "p9", Stock: 3}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, 3, repotest.Stock(t, db, "p9"))
}
