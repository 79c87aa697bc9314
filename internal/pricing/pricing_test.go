package pricing

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type promoMap map[string]*Promo

func (m promoMap) FindPromo(_ context.Context, code string) (*Promo, error) {
	return m[code], nil
}

type failingLookup struct{}

func (failingLookup) FindPromo(context.Context, string) (*Promo, error) {
	return nil, errors.New("db down")
}

var (
	rules = Rules{
		FreeShippingThreshold: decimal.NewFromInt(5000),
		FlatShippingFee:       decimal.NewFromInt(250),
	}
	now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func scenarioCart() domain.Cart {
	sale := dec("2900")
	return domain.Cart{Items: []domain.CartItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: dec("2200")},
		{ProductID: "p2", Quantity: 1, UnitPrice: dec("3200"), UnitSalePrice: &sale},
	}}
}

func intPtr(n int) *int { return &n }

func TestQuote_NoPromoAboveThreshold(t *testing.T) {
	e := NewEngine(rules, promoMap{}).WithClock(func() time.Time { return now })

	res, err := e.Quote(context.Background(), scenarioCart(), "")
	require.NoError(t, err)

	assert.True(t, res.Subtotal.Equal(dec("7300")), res.Subtotal.String())
	assert.True(t, res.ShippingCost.IsZero())
	assert.True(t, res.Discount.IsZero())
	assert.True(t, res.Total.Equal(dec("7300")))
	assert.Equal(t, PromoNone, res.PromoStatus)
	assert.Empty(t, res.Warning())
}

func TestQuote_TenPercentPromo(t *testing.T) {
	expires := now.Add(24 * time.Hour)
	e := NewEngine(rules, promoMap{
		"10PCT": {Code: "10PCT", Kind: PromoPercentage, Value: dec("10"), ExpiresAt: &expires, MaxUses: intPtr(100)},
	}).WithClock(func() time.Time { return now })

	res, err := e.Quote(context.Background(), scenarioCart(), " 10pct ")
	require.NoError(t, err)

	assert.Equal(t, PromoApplied, res.PromoStatus)
	assert.Equal(t, "10PCT", res.PromoCode)
	assert.True(t, res.Discount.Equal(dec("730")), res.Discount.String())
	assert.True(t, res.Total.Equal(dec("6570")), res.Total.String())
}

func TestQuote_InvalidCodesYieldZeroDiscountAndSignal(t *testing.T) {
	expired := now.Add(-time.Minute)
	e := NewEngine(rules, promoMap{
		"OLD":  {Code: "OLD", Kind: PromoPercentage, Value: dec("10"), ExpiresAt: &expired},
		"USED": {Code: "USED", Kind: PromoFixed, Value: dec("100"), MaxUses: intPtr(3), UsedCount: 3},
	}).WithClock(func() time.Time { return now })

	for _, code := range []string{"NOPE", "OLD", "USED"} {
		res, err := e.Quote(context.Background(), scenarioCart(), code)
		require.NoError(t, err, code)
		assert.Equal(t, PromoInvalid, res.PromoStatus, code)
		assert.True(t, res.Discount.IsZero(), code)
		assert.True(t, res.Total.Equal(dec("7300")), code)
		assert.Contains(t, res.Warning(), code)
	}
}

func TestQuote_LookupFailureIsAnError(t *testing.T) {
	e := NewEngine(rules, failingLookup{})
	_, err := e.Quote(context.Background(), scenarioCart(), "ANY")
	assert.Error(t, err)
}

func TestCompute_FixedDiscountClampedToSubtotal(t *testing.T) {
	cart := domain.Cart{Items: []domain.CartItem{{ProductID: "p", Quantity: 1, UnitPrice: dec("40")}}}
	q := Compute(cart.Items, &Promo{Kind: PromoFixed, Value: dec("1000")}, rules)

	assert.True(t, q.Discount.Equal(dec("40")))
	assert.True(t, q.ShippingCost.Equal(dec("250")), "shipping uses the pre-discount subtotal")
	assert.True(t, q.Total.Equal(dec("250")))
}

func TestCompute_EmptyCart(t *testing.T) {
	q := Compute(nil, nil, rules)
	assert.True(t, q.Total.IsZero())
	assert.True(t, q.ShippingCost.IsZero())
}

func TestCompute_ShippingStep(t *testing.T) {
	below := []domain.CartItem{{ProductID: "p", Quantity: 1, UnitPrice: dec("4999.99")}}
	at := []domain.CartItem{{ProductID: "p", Quantity: 1, UnitPrice: dec("5000")}}

	assert.True(t, Compute(below, nil, rules).ShippingCost.Equal(dec("250")))
	assert.True(t, Compute(at, nil, rules).ShippingCost.IsZero())
}

func TestCompute_NeverNegativeAndIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for n := 0; n < 500; n++ {
		var items []domain.CartItem
		lines := r.Intn(5)
		for i := 0; i < lines; i++ {
			items = append(items, domain.CartItem{
				ProductID: string(rune('a' + i)),
				Quantity:  1 + r.Intn(4),
				UnitPrice: decimal.NewFromInt(int64(r.Intn(3000))),
			})
		}
		var promo *Promo
		switch r.Intn(3) {
		case 1:
			promo = &Promo{Kind: PromoPercentage, Value: decimal.NewFromInt(int64(r.Intn(101)))}
		case 2:
			promo = &Promo{Kind: PromoFixed, Value: decimal.NewFromInt(int64(r.Intn(20000)))}
		}

		q := Compute(items, promo, rules)
		assert.False(t, q.Total.IsNegative())
		assert.False(t, q.Discount.IsNegative())
		assert.True(t, q.Discount.LessThanOrEqual(q.Subtotal))
		again := Compute(items, promo, rules)
		assert.True(t, q.Total.Equal(again.Total))
		assert.True(t, q.Discount.Equal(again.Discount))
	}
}

func TestPromo_Usable(t *testing.T) {
	assert.True(t, Promo{Kind: PromoFixed, Value: dec("5")}.Usable(now))
	assert.False(t, Promo{Kind: PromoPercentage, Value: dec("120")}.Usable(now))
	assert.False(t, Promo{Kind: "bogus", Value: dec("5")}.Usable(now))
	at := now
	assert.False(t, Promo{Kind: PromoFixed, Value: dec("5"), ExpiresAt: &at}.Usable(now))
}
