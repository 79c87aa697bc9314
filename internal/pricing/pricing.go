// Package pricing computes cart quotes. Compute is pure; Engine only adds a
// read-only promo lookup in front of it, so quotes can be recomputed freely.
package pricing

import (
	"context"
	"strings"
	"time"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/shopspring/decimal"
)

type PromoKind string

const (
	PromoPercentage PromoKind = "percentage"
	PromoFixed      PromoKind = "fixed"
)

type Promo struct {
	Code      string
	Kind      PromoKind
	Value     decimal.Decimal
	ExpiresAt *time.Time
	MaxUses   *int
	UsedCount int
}

// Usable reports whether the code is unexpired and has uses left at now.
func (p Promo) Usable(now time.Time) bool {
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return false
	}
	if p.MaxUses != nil && p.UsedCount >= *p.MaxUses {
		return false
	}
	switch p.Kind {
	case PromoPercentage:
		return !p.Value.IsNegative() && p.Value.LessThanOrEqual(decimal.NewFromInt(100))
	case PromoFixed:
		return !p.Value.IsNegative()
	}
	return false
}

type Rules struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
}

// Shipping is free at or above the threshold and a flat fee below it.
// An empty cart ships nothing and costs nothing.
func (r Rules) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.IsZero() || subtotal.GreaterThanOrEqual(r.FreeShippingThreshold) {
		return decimal.Zero
	}
	return r.FlatShippingFee
}

type Quote struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Total        decimal.Decimal `json:"total"`
}

type PromoStatus string

const (
	PromoNone    PromoStatus = "none"
	PromoApplied PromoStatus = "applied"
	PromoInvalid PromoStatus = "invalid"
)

// Result is a quote plus the outcome of promo resolution. An invalid code is
// not an error: the quote carries discount 0 and PromoStatus is PromoInvalid.
type Result struct {
	Quote
	PromoCode   string      `json:"promoCode,omitempty"`
	PromoStatus PromoStatus `json:"promoStatus"`
	Promo       *Promo      `json:"-"`
}

func (r Result) Warning() string {
	if r.PromoStatus == PromoInvalid {
		return "promo code " + r.PromoCode + " is invalid, expired or fully used"
	}
	return ""
}

// Compute prices the items with an already-resolved promo (nil for none).
// The discount is clamped to [0, subtotal] so the total never goes negative.
func Compute(items []domain.CartItem, promo *Promo, rules Rules) Quote {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		subtotal = subtotal.Add(it.EffectivePrice().Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	discount := decimal.Zero
	if promo != nil {
		switch promo.Kind {
		case PromoPercentage:
			discount = subtotal.Mul(promo.Value).Div(decimal.NewFromInt(100)).Round(2)
		case PromoFixed:
			discount = promo.Value
		}
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	shipping := rules.Shipping(subtotal)
	return Quote{
		Subtotal:     subtotal,
		Discount:     discount,
		ShippingCost: shipping,
		Total:        subtotal.Sub(discount).Add(shipping),
	}
}

// PromoLookup returns the promo for code, or nil when the code is unknown.
type PromoLookup interface {
	FindPromo(ctx context.Context, code string) (*Promo, error)
}

type Engine struct {
	rules  Rules
	promos PromoLookup
	now    func() time.Time
}

func NewEngine(rules Rules, promos PromoLookup) *Engine {
	return &Engine{rules: rules, promos: promos, now: time.Now}
}

// WithClock overrides the time source used for promo expiry.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Rules() Rules { return e.rules }

// Quote never mutates promo usage; consumption happens at commit.
// The only error is a failed lookup.
func (e *Engine) Quote(ctx context.Context, cart domain.Cart, code string) (Result, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Result{Quote: Compute(cart.Items, nil, e.rules), PromoStatus: PromoNone}, nil
	}

	promo, err := e.promos.FindPromo(ctx, code)
	if err != nil {
		return Result{}, err
	}
	if promo == nil || !promo.Usable(e.now()) {
		return Result{
			Quote:       Compute(cart.Items, nil, e.rules),
			PromoCode:   code,
			PromoStatus: PromoInvalid,
		}, nil
	}
	return Result{
		Quote:       Compute(cart.Items, promo, e.rules),
		PromoCode:   code,
		PromoStatus: PromoApplied,
		Promo:       promo,
	}, nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
