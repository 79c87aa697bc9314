package repo_test

import (
	"context"
	"testing"

	"github.com/aq2208/gcheckout-api/internal/adapter/repo"
	"github.com/aq2208/gcheckout-api/internal/adapter/repo/repotest"
	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLCartRepo_SaveReplacesAndKeepsOrder(t *testing.T) {
	db := repotest.Open(t)
	carts := repo.NewSQLCartRepo(db)
	ctx := context.Background()
	sale := decimal.RequireFromString("2900")

	empty, err := carts.Load(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	c := domain.Cart{Items: []domain.CartItem{
		{ProductID: "p2", Quantity: 1, UnitPrice: decimal.RequireFromString("3200"), UnitSalePrice: &sale},
		{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("2200")},
	}}
	require.NoError(t, carts.Save(ctx, "u-1", c))
	require.NoError(t, carts.Save(ctx, "u-1", c.SetQuantity("p1", 5)))

	got, err := carts.Load(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, got.ProductIDs())
	p1, _ := got.Find("p1")
	assert.Equal(t, 5, p1.Quantity)
	p2, _ := got.Find("p2")
	require.NotNil(t, p2.UnitSalePrice)
	assert.True(t, p2.EffectivePrice().Equal(sale))

	require.NoError(t, carts.Delete(ctx, "u-1"))
	got, err = carts.Load(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}
