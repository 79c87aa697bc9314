package usecase_test

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aq2208/gcheckout-api/internal/adapter/cache"
	"github.com/aq2208/gcheckout-api/internal/adapter/repo"
	"github.com/aq2208/gcheckout-api/internal/adapter/repo/repotest"
	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/pricing"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type kickCounter struct{ n atomic.Int32 }

func (k *kickCounter) Kick() { k.n.Add(1) }

type fixture struct {
	db     *sql.DB
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	lock   *cache.RedisMergeLock
	tiers  usecase.CartTiers
	ledger *repo.MySQLStockLedger
	engine *pricing.Engine
	carts  *usecase.CartService
	merge  *usecase.MergeCart
	commit *usecase.CommitOrder
	kicks  *kickCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := repotest.Open(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repotest.SeedProducts(t, db,
		repotest.Product{ID: "p1", Name: "Brass Lamp", Price: "2200", Active: true, Stock: 10},
		repotest.Product{ID: "p2", Name: "Oak Desk", Price: "3200", SalePrice: "2900", Active: true, Stock: 10},
		repotest.Product{ID: "p3", Name: "Retired Chair", Price: "500", Active: false, Stock: 10},
	)

	f := &fixture{db: db, mr: mr, rdb: rdb, kicks: &kickCounter{}}
	f.lock = cache.NewRedisMergeLock(rdb, 5*time.Second, time.Second)
	f.tiers = usecase.CartTiers{
		Anon:  cache.NewRedisAnonCartStore(rdb, time.Hour),
		Owned: repo.NewSQLCartRepo(db),
		Lock:  f.lock,
	}
	f.ledger = repo.NewMySQLStockLedger(db)
	f.engine = pricing.NewEngine(pricing.Rules{
		FreeShippingThreshold: decimal.NewFromInt(5000),
		FlatShippingFee:       decimal.NewFromInt(250),
	}, repo.NewSQLPromoRepo(db))
	catalog := repo.NewSQLCatalog(db)

	f.carts = usecase.NewCartService(f.tiers, catalog, f.ledger, f.engine)
	f.merge = usecase.NewMergeCart(f.tiers, f.lock, f.ledger)
	f.commit = f.commitWith(f.uow(), cache.NewRedisIdempotencyStore(rdb, time.Hour), 5*time.Second)
	return f
}

func (f *fixture) uow() *repo.SQLUnitOfWork { return repo.NewSQLUnitOfWork(f.db) }

// commitWith builds a CommitOrder over the fixture's stores with the given
// transaction runner, idempotency store and commit timeout swapped in.
func (f *fixture) commitWith(uow usecase.UnitOfWork, idem usecase.IdempotencyStore, timeout time.Duration) *usecase.CommitOrder {
	return usecase.NewCommitOrder(f.tiers, repo.NewSQLCatalog(f.db), f.engine, uow,
		repo.NewMySQLOrderRepo(f.db), idem, f.kicks,
		usecase.CommitConfig{PaymentMethods: []string{"cod", "card"}, Timeout: timeout})
}

func (f *fixture) setStock(t *testing.T, productID string, n int) {
	t.Helper()
	_, err := f.db.Exec(`UPDATE stock SET available = ? WHERE product_id = ?`, n, productID)
	require.NoError(t, err)
}

// putCart writes a cart directly, bypassing the stock clamp of CartService.
func (f *fixture) putCart(t *testing.T, sh domain.Shopper, items ...domain.CartItem) {
	t.Helper()
	r, key, err := f.tiers.For(sh)
	require.NoError(t, err)
	require.NoError(t, r.Save(context.Background(), key, domain.Cart{Items: items}))
}

func (f *fixture) loadCart(t *testing.T, sh domain.Shopper) domain.Cart {
	t.Helper()
	r, key, err := f.tiers.For(sh)
	require.NoError(t, err)
	c, err := r.Load(context.Background(), key)
	require.NoError(t, err)
	return c
}

func item(id string, qty int, price string) domain.CartItem {
	return domain.CartItem{ProductID: id, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func shipping() domain.ShippingInfo {
	return domain.ShippingInfo{
		Name: "Ayesha Khan", Email: "ayesha@example.com", Address: "12 Canal Rd",
		City: "Lahore", PostalCode: "54000", Country: "PK",
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func repoCatalog(f *fixture) usecase.Catalog { return repo.NewSQLCatalog(f.db) }
