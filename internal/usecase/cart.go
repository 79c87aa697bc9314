package usecase

import (
	"context"
	"fmt"
	"math"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/aq2208/gcheckout-api/internal/pricing"
)

// CartTiers picks the storage tier for a shopper: device-keyed carts live in
// the anonymous tier, identity carts in the authoritative one. Lock, when
// set, is the per-identity merge lock that identity cart writes also take.
type CartTiers struct {
	Anon  AnonCartRepo
	Owned CartRepo
	Lock  MergeLock
}

func (t CartTiers) For(sh domain.Shopper) (CartRepo, string, error) {
	if !sh.Valid() {
		return nil, "", ErrNoShopper
	}
	if sh.Anonymous() {
		return t.Anon, sh.DeviceToken, nil
	}
	return t.Owned, sh.IdentityID, nil
}

// Guard holds the identity's merge lock for the length of a cart write so a
// read-modify-write never lands on top of a merge. Device carts are only
// ever merged by Take, which is atomic on its own.
func (t CartTiers) Guard(ctx context.Context, sh domain.Shopper) (func(), error) {
	if t.Lock == nil || sh.Anonymous() {
		return func() {}, nil
	}
	release, err := t.Lock.Acquire(ctx, sh.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("%w: cart lock: %v", ErrRetryable, err)
	}
	return release, nil
}

// CartView is what every cart call returns: the stored lines, a fresh quote
// and any non-fatal notices (clamped quantities, invalid promo).
type CartView struct {
	Cart     domain.Cart    `json:"cart"`
	Quote    pricing.Result `json:"quote"`
	Warnings []string       `json:"warnings,omitempty"`
}

type CartService struct {
	tiers   CartTiers
	catalog Catalog
	stock   StockReader
	pricing *pricing.Engine
}

func NewCartService(tiers CartTiers, catalog Catalog, stock StockReader, engine *pricing.Engine) *CartService {
	return &CartService{tiers: tiers, catalog: catalog, stock: stock, pricing: engine}
}

func (s *CartService) Get(ctx context.Context, sh domain.Shopper, promoCode string) (CartView, error) {
	repo, key, err := s.tiers.For(sh)
	if err != nil {
		return CartView{}, err
	}
	cart, err := repo.Load(ctx, key)
	if err != nil {
		return CartView{}, fmt.Errorf("load cart: %w", err)
	}
	return s.view(ctx, cart, promoCode, nil)
}

// Quote is Get with a promo code; it never records anything.
func (s *CartService) Quote(ctx context.Context, sh domain.Shopper, promoCode string) (CartView, error) {
	return s.Get(ctx, sh, promoCode)
}

// Add sums delta into the product's line. A negative delta decrements and a
// resulting quantity <= 0 removes the line. The sum saturates so a huge delta
// clamps to stock instead of wrapping negative.
func (s *CartService) Add(ctx context.Context, sh domain.Shopper, productID string, delta int) (CartView, error) {
	if productID == "" {
		return CartView{}, newValidation("productId", "is required")
	}
	if delta == 0 {
		return CartView{}, newValidation("quantity", "must not be zero")
	}
	return s.mutate(ctx, sh, productID, func(c domain.Cart) int {
		cur, _ := c.Find(productID)
		return addSat(cur.Quantity, delta)
	})
}

// SetQuantity replaces the line quantity; qty <= 0 removes the line.
func (s *CartService) SetQuantity(ctx context.Context, sh domain.Shopper, productID string, qty int) (CartView, error) {
	if productID == "" {
		return CartView{}, newValidation("productId", "is required")
	}
	return s.mutate(ctx, sh, productID, func(domain.Cart) int { return qty })
}

func (s *CartService) Remove(ctx context.Context, sh domain.Shopper, productID string) (CartView, error) {
	repo, key, err := s.tiers.For(sh)
	if err != nil {
		return CartView{}, err
	}
	release, err := s.tiers.Guard(ctx, sh)
	if err != nil {
		return CartView{}, err
	}
	defer release()

	cart, err := repo.Load(ctx, key)
	if err != nil {
		return CartView{}, fmt.Errorf("load cart: %w", err)
	}
	next := cart.Remove(productID)
	if err := s.save(ctx, repo, key, next); err != nil {
		return CartView{}, err
	}
	return s.view(ctx, next, "", nil)
}

func (s *CartService) Clear(ctx context.Context, sh domain.Shopper) (CartView, error) {
	repo, key, err := s.tiers.For(sh)
	if err != nil {
		return CartView{}, err
	}
	release, err := s.tiers.Guard(ctx, sh)
	if err != nil {
		return CartView{}, err
	}
	defer release()

	if err := repo.Delete(ctx, key); err != nil {
		logging.FromCtx(ctx).Error("cart clear failed", "err", err)
		return CartView{}, fmt.Errorf("%w: %v", ErrCartNotSaved, err)
	}
	return s.view(ctx, domain.Cart{}.Clear(), "", nil)
}

// mutate loads the cart, computes the wanted quantity, validates the product
// and clamps to current stock before saving.
func (s *CartService) mutate(ctx context.Context, sh domain.Shopper, productID string, want func(domain.Cart) int) (CartView, error) {
	repo, key, err := s.tiers.For(sh)
	if err != nil {
		return CartView{}, err
	}
	release, err := s.tiers.Guard(ctx, sh)
	if err != nil {
		return CartView{}, err
	}
	defer release()

	cart, err := repo.Load(ctx, key)
	if err != nil {
		return CartView{}, fmt.Errorf("load cart: %w", err)
	}

	qty := want(cart)
	if qty <= 0 {
		next := cart.Remove(productID)
		if err := s.save(ctx, repo, key, next); err != nil {
			return CartView{}, err
		}
		return s.view(ctx, next, "", nil)
	}

	products, err := s.catalog.Products(ctx, []string{productID})
	if err != nil {
		return CartView{}, fmt.Errorf("catalog: %w", err)
	}
	p, ok := products[productID]
	if !ok || !p.Active {
		return CartView{}, newValidation("productId", "unknown or unavailable product")
	}

	avail, err := s.stock.Available(ctx, []string{productID})
	if err != nil {
		return CartView{}, fmt.Errorf("stock: %w", err)
	}
	onHand := avail[productID]
	if onHand <= 0 {
		return CartView{}, &StockConflictError{Lines: []StockShortfall{{ProductID: productID, Requested: qty, Available: 0}}}
	}

	var warnings []string
	if qty > onHand {
		warnings = append(warnings, fmt.Sprintf("quantity of %s reduced to %d (available stock)", productID, onHand))
		qty = onHand
	}

	next := cart.Put(p.CartItem(qty))
	if err := s.save(ctx, repo, key, next); err != nil {
		return CartView{}, err
	}
	return s.view(ctx, next, "", warnings)
}

func addSat(a, b int) int {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return math.MaxInt
	case b < 0 && a < math.MinInt-b:
		return math.MinInt
	}
	return a + b
}

func (s *CartService) save(ctx context.Context, repo CartRepo, key string, c domain.Cart) error {
	if err := repo.Save(ctx, key, c); err != nil {
		logging.FromCtx(ctx).Error("cart save failed", "err", err)
		return fmt.Errorf("%w: %v", ErrCartNotSaved, err)
	}
	return nil
}

func (s *CartService) view(ctx context.Context, c domain.Cart, promoCode string, warnings []string) (CartView, error) {
	res, err := s.pricing.Quote(ctx, c, promoCode)
	if err != nil {
		return CartView{}, fmt.Errorf("quote: %w", err)
	}
	if w := res.Warning(); w != "" {
		warnings = append(warnings, w)
	}
	return CartView{Cart: nonNil(c), Quote: res, Warnings: warnings}, nil
}
