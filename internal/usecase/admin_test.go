package usecase_test

import (
	"context"
	"testing"

	"github.com/aq2208/gcheckout-api/internal/adapter/repo"
	"github.com/aq2208/gcheckout-api/internal/adapter/repo/repotest"
	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeOrder(t *testing.T, f *fixture) string {
	t.Helper()
	f.putCart(t, member, item("p1", 2, "2200"))
	out, err := f.commit.Execute(context.Background(), usecase.CommitInput{
		Shopper: member, Shipping: shipping(), PaymentMethod: "cod",
	})
	require.NoError(t, err)
	return out.OrderID
}

func TestAdminOrders_FollowsStatusMachine(t *testing.T) {
	f := newFixture(t)
	admin := usecase.NewAdminOrders(repo.NewSQLUnitOfWork(f.db))
	id := placeOrder(t, f)
	ctx := context.Background()

	o, err := admin.UpdateStatus(ctx, id, domain.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, o.Status)

	_, err = admin.UpdateStatus(ctx, id, domain.StatusPending)
	assert.ErrorIs(t, err, usecase.ErrInvalidTransition)

	o, err = admin.UpdateStatus(ctx, id, domain.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, o.Status)

	_, err = admin.UpdateStatus(ctx, id, domain.StatusCancelled)
	assert.ErrorIs(t, err, usecase.ErrInvalidTransition, "delivered is terminal")
}

func TestAdminOrders_CancelRestocks(t *testing.T) {
	f := newFixture(t)
	admin := usecase.NewAdminOrders(repo.NewSQLUnitOfWork(f.db))
	id := placeOrder(t, f)
	require.Equal(t, 8, repotest.Stock(t, f.db, "p1"))

	o, err := admin.UpdateStatus(context.Background(), id, domain.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, o.Status)
	assert.Equal(t, 10, repotest.Stock(t, f.db, "p1"))
}

func TestAdminOrders_NotFound(t *testing.T) {
	f := newFixture(t)
	admin := usecase.NewAdminOrders(repo.NewSQLUnitOfWork(f.db))
	_, err := admin.UpdateStatus(context.Background(), "missing", domain.StatusShipped)
	assert.ErrorIs(t, err, usecase.ErrNotFound)
}

func TestInventory_BulkSetReportsEveryBadRow(t *testing.T) {
	f := newFixture(t)
	inv := usecase.NewInventory(f.ledger)

	res, err := inv.BulkSet(context.Background(), []domain.StockAdjustment{
		{ProductID: "p1", Stock: 4},
		{ProductID: "", Stock: 1},
		{ProductID: "p2", Stock: -1},
		{ProductID: "ghost", Stock: 2},
		{ProductID: "p1", Stock: 9},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.UpdatedCount)
	assert.Len(t, res.Errors, 4)
	assert.Equal(t, 4, repotest.Stock(t, f.db, "p1"))
	assert.Equal(t, 10, repotest.Stock(t, f.db, "p2"))
}
