package usecase_test

import (
	"context"
	"errors"
	"testing"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_SumsSharedLinesAndSecondRunIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putCart(t, domain.Shopper{DeviceToken: "dev-1"}, item("p1", 1, "2200"))
	f.putCart(t, domain.Shopper{IdentityID: "u-1"}, item("p1", 2, "2200"))

	res, err := f.merge.Execute(ctx, member)
	require.NoError(t, err)
	assert.True(t, res.Merged)
	require.Len(t, res.Cart.Items, 1)
	assert.Equal(t, 3, res.Cart.Items[0].Quantity)
	assert.False(t, f.mr.Exists("cart:anon:dev-1"), "anonymous cart destroyed")

	again, err := f.merge.Execute(ctx, member)
	require.NoError(t, err)
	assert.False(t, again.Merged)
	require.Len(t, again.Cart.Items, 1)
	assert.Equal(t, 3, again.Cart.Items[0].Quantity)

	stored := f.loadCart(t, domain.Shopper{IdentityID: "u-1"})
	p1, _ := stored.Find("p1")
	assert.Equal(t, 3, p1.Quantity)
}

func TestMerge_AppendsAnonymousOnlyLinesInOrder(t *testing.T) {
	f := newFixture(t)
	f.putCart(t, domain.Shopper{DeviceToken: "dev-1"}, item("p2", 1, "3200"), item("p1", 4, "2200"))
	f.putCart(t, domain.Shopper{IdentityID: "u-1"}, item("p1", 1, "2200"))

	res, err := f.merge.Execute(context.Background(), member)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, res.Cart.ProductIDs())
	p1, _ := res.Cart.Find("p1")
	assert.Equal(t, 5, p1.Quantity)
}

func TestMerge_WarnsButDoesNotClampOverStock(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, "p1", 2)
	f.putCart(t, domain.Shopper{DeviceToken: "dev-1"}, item("p1", 2, "2200"))
	f.putCart(t, domain.Shopper{IdentityID: "u-1"}, item("p1", 2, "2200"))

	res, err := f.merge.Execute(context.Background(), member)
	require.NoError(t, err)
	p1, _ := res.Cart.Find("p1")
	assert.Equal(t, 4, p1.Quantity)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "p1")
}

func TestMerge_EmptyAnonymousLeavesIdentityCart(t *testing.T) {
	f := newFixture(t)
	f.putCart(t, domain.Shopper{IdentityID: "u-1"}, item("p2", 1, "3200"))

	res, err := f.merge.Execute(context.Background(), member)
	require.NoError(t, err)
	assert.False(t, res.Merged)
	assert.Equal(t, []string{"p2"}, res.Cart.ProductIDs())
}

func TestMerge_RequiresIdentityAndDevice(t *testing.T) {
	f := newFixture(t)
	for _, sh := range []domain.Shopper{{IdentityID: "u-1"}, {DeviceToken: "dev-1"}} {
		_, err := f.merge.Execute(context.Background(), sh)
		var ve *usecase.ValidationError
		assert.ErrorAs(t, err, &ve)
	}
}

type failingOwned struct {
	usecase.CartRepo
}

func (failingOwned) Save(context.Context, string, domain.Cart) error {
	return errors.New("mysql: server has gone away")
}

func TestMerge_SaveFailureRestoresAnonymousCart(t *testing.T) {
	f := newFixture(t)
	f.putCart(t, domain.Shopper{DeviceToken: "dev-1"}, item("p1", 1, "2200"))
	tiers := usecase.CartTiers{Anon: f.tiers.Anon, Owned: failingOwned{f.tiers.Owned}}
	m := usecase.NewMergeCart(tiers, noLock{}, f.ledger)

	_, err := m.Execute(context.Background(), member)
	assert.ErrorIs(t, err, usecase.ErrCartNotSaved)
	assert.Len(t, f.loadCart(t, domain.Shopper{DeviceToken: "dev-1"}).Items, 1)
}

type noLock struct{}

func (noLock) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

func TestMerge_LockTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mr.Set("lock:merge:u-1", "someone"))
	f.putCart(t, domain.Shopper{DeviceToken: "dev-1"}, item("p1", 1, "2200"))

	_, err := f.merge.Execute(context.Background(), member)
	assert.ErrorIs(t, err, usecase.ErrRetryable)
	assert.True(t, f.mr.Exists("cart:anon:dev-1"), "nothing taken while locked out")
}
