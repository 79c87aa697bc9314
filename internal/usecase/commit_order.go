package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/aq2208/gcheckout-api/internal/observ"
	"github.com/aq2208/gcheckout-api/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxNotesLen = 500

type CommitInput struct {
	Shopper             domain.Shopper
	Shipping            domain.ShippingInfo
	PaymentMethod       string
	PaymentSessionToken string
	Notes               string
	PromoCode           string
	IdempotencyKey      string
}

type CommitOutput struct {
	OrderID  string          `json:"orderId"`
	Status   domain.Status   `json:"status"`
	Total    decimal.Decimal `json:"total"`
	Warnings []string        `json:"warnings,omitempty"`
}

type CommitConfig struct {
	PaymentMethods []string
	Timeout        time.Duration
}

// CommitOrder turns the shopper's cart into an order exactly once.
type CommitOrder struct {
	tiers   CartTiers
	catalog Catalog
	pricing *pricing.Engine
	uow     UnitOfWork
	orders  OrderReader
	idem    IdempotencyStore
	kicker  Kicker
	cfg     CommitConfig
	now     func() time.Time
}

func NewCommitOrder(tiers CartTiers, catalog Catalog, engine *pricing.Engine, uow UnitOfWork,
	orders OrderReader, idem IdempotencyStore, kicker Kicker, cfg CommitConfig) *CommitOrder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &CommitOrder{
		tiers: tiers, catalog: catalog, pricing: engine, uow: uow,
		orders: orders, idem: idem, kicker: kicker, cfg: cfg, now: time.Now,
	}
}

func (uc *CommitOrder) Execute(ctx context.Context, in CommitInput) (out CommitOutput, err error) {
	repo, key, err := uc.tiers.For(in.Shopper)
	if err != nil {
		return CommitOutput{}, err
	}

	ctx, span := observ.Tracer().Start(ctx, "checkout.commit")
	defer func() {
		outcome := commitOutcome(err)
		observ.CommitsTotal.WithLabelValues(outcome).Inc()
		span.SetAttributes(attribute.String("commit.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("order.id", out.OrderID))
		}
		span.End()
	}()
	log := logging.FromCtx(ctx)

	scope := idemScope(in.Shopper)
	if in.IdempotencyKey != "" {
		if id, ok, rerr := uc.idem.Recall(ctx, scope, in.IdempotencyKey); rerr != nil {
			log.Warn("idempotency recall failed", "err", rerr)
		} else if ok {
			return uc.replay(ctx, id)
		}
		locked, lerr := uc.idem.TryLock(ctx, scope, in.IdempotencyKey)
		if lerr != nil {
			return CommitOutput{}, fmt.Errorf("%w: idempotency lock: %v", ErrRetryable, lerr)
		}
		// the store only maps a key once the commit is through; the order row
		// is authoritative when that write was lost or has expired
		if prev, ok := uc.committed(ctx, scope, in.IdempotencyKey); ok {
			return prev, nil
		}
		if !locked {
			return CommitOutput{}, ErrDuplicate
		}
		defer func() {
			if err == nil {
				return
			}
			if uerr := uc.idem.Unlock(context.WithoutCancel(ctx), scope, in.IdempotencyKey); uerr != nil {
				log.Warn("idempotency unlock failed", "err", uerr)
			}
		}()
	}

	cart, err := repo.Load(ctx, key)
	if err != nil {
		return CommitOutput{}, fmt.Errorf("load cart: %w", err)
	}

	fe := in.Shipping.Validate()
	if !slices.Contains(uc.cfg.PaymentMethods, in.PaymentMethod) {
		fe.Add("paymentMethod", "must be one of "+strings.Join(uc.cfg.PaymentMethods, ", "))
	}
	if utf8.RuneCountInString(in.Notes) > maxNotesLen {
		fe.Add("notes", fmt.Sprintf("must be at most %d characters", maxNotesLen))
	}
	if cart.IsEmpty() {
		fe.Add("cart", "is empty")
	}
	if !fe.Empty() {
		return CommitOutput{}, &ValidationError{Fields: fe}
	}

	priced, names, err := uc.reprice(ctx, cart)
	if err != nil {
		return CommitOutput{}, err
	}
	res, err := uc.pricing.Quote(ctx, priced, in.PromoCode)
	if err != nil {
		return CommitOutput{}, fmt.Errorf("quote: %w", err)
	}

	var warnings []string
	if w := res.Warning(); w != "" {
		warnings = append(warnings, w)
	}

	now := uc.now().UTC()
	order := &domain.Order{
		ID:            uuid.NewString(),
		IdentityID:    in.Shopper.IdentityID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Status:        domain.StatusPending,
		Shipping:      in.Shipping,
		PaymentMethod: in.PaymentMethod,
		PaymentRef:    in.PaymentSessionToken,
		Notes:         in.Notes,
	}
	for _, it := range priced.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: it.ProductID,
			Name:      names[it.ProductID],
			UnitPrice: it.EffectivePrice(),
			Quantity:  it.Quantity,
		})
	}
	applyQuote(order, res.Quote)
	if res.PromoStatus == pricing.PromoApplied {
		order.PromoCode = res.PromoCode
	}
	if err := order.Validate(); err != nil {
		return CommitOutput{}, fmt.Errorf("build order: %w", err)
	}

	tctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()
	started := time.Now()
	err = uc.uow.Do(tctx, func(ctx context.Context, tx Tx) error {
		if err := decrementAll(ctx, tx.Stock(), order.Items); err != nil {
			return err
		}
		if order.PromoCode != "" {
			ok, err := tx.Promos().Consume(ctx, order.PromoCode, now)
			if err != nil {
				return fmt.Errorf("consume promo: %w", err)
			}
			if !ok {
				// exhausted by a concurrent commit since the quote
				warnings = append(warnings, "promo code "+order.PromoCode+" was used up before your order completed")
				order.PromoCode = ""
				applyQuote(order, pricing.Compute(priced.Items, nil, uc.pricing.Rules()))
			}
		}
		if err := tx.Orders().Create(ctx, order, rowKey(scope, in.IdempotencyKey)); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if order.IsGuest() {
			return nil
		}
		payload, err := json.Marshal(OrderPlacedMsg{
			OrderID:    order.ID,
			IdentityID: order.IdentityID,
			Total:      order.Total,
			PlacedAt:   order.CreatedAt,
		})
		if err != nil {
			return err
		}
		for _, ch := range []string{ChannelLoyaltyAward, ChannelReferralComplete} {
			if err := tx.Outbox().Enqueue(ctx, ch, payload); err != nil {
				return fmt.Errorf("enqueue %s: %w", ch, err)
			}
		}
		return nil
	})
	observ.CommitDuration.Observe(float64(time.Since(started).Milliseconds()))
	if err != nil {
		var sc *StockConflictError
		switch {
		case errors.As(err, &sc):
			observ.StockConflictLines.Add(float64(len(sc.Lines)))
			log.Info("commit rejected: stock conflict", "lines", sc.ProductIDs())
			return CommitOutput{}, err
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrRetryable), tctx.Err() != nil:
			log.Warn("commit timed out", "err", err)
			return CommitOutput{}, fmt.Errorf("%w: %v", ErrRetryable, err)
		case errors.Is(err, ErrDuplicate) && in.IdempotencyKey != "":
			if prev, ok := uc.committed(ctx, scope, in.IdempotencyKey); ok {
				return prev, nil
			}
		}
		log.Error("commit failed", "err", err)
		return CommitOutput{}, err
	}

	if err := repo.Delete(ctx, key); err != nil {
		log.Warn("cart clear after commit failed", "order_id", order.ID, "err", err)
	}
	if in.IdempotencyKey != "" {
		if err := uc.idem.Remember(ctx, scope, in.IdempotencyKey, order.ID); err != nil {
			log.Warn("idempotency remember failed", "order_id", order.ID, "err", err)
		}
	}
	if !order.IsGuest() && uc.kicker != nil {
		uc.kicker.Kick()
	}

	log.Info("order committed", "order_id", order.ID, "total", order.Total.String(), "guest", order.IsGuest())
	return CommitOutput{OrderID: order.ID, Status: order.Status, Total: order.Total, Warnings: warnings}, nil
}

func (uc *CommitOrder) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return uc.orders.GetByID(ctx, id)
}

func (uc *CommitOrder) replay(ctx context.Context, orderID string) (CommitOutput, error) {
	o, err := uc.orders.GetByID(ctx, orderID)
	if err != nil {
		return CommitOutput{}, fmt.Errorf("replay %s: %w", orderID, err)
	}
	return CommitOutput{OrderID: o.ID, Status: o.Status, Total: o.Total}, nil
}

// committed looks up the order an earlier attempt with the same key wrote and
// re-records the key mapping for it.
func (uc *CommitOrder) committed(ctx context.Context, scope, key string) (CommitOutput, bool) {
	o, err := uc.orders.GetByIdempotencyKey(ctx, rowKey(scope, key))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.FromCtx(ctx).Warn("idempotency lookup failed", "err", err)
		}
		return CommitOutput{}, false
	}
	if err := uc.idem.Remember(ctx, scope, key, o.ID); err != nil {
		logging.FromCtx(ctx).Warn("idempotency remember failed", "order_id", o.ID, "err", err)
	}
	return CommitOutput{OrderID: o.ID, Status: o.Status, Total: o.Total}, true
}

// reprice rebuilds every line from the current catalog. Missing or inactive
// products fail validation; the stored cart snapshot is never trusted.
func (uc *CommitOrder) reprice(ctx context.Context, cart domain.Cart) (domain.Cart, map[string]string, error) {
	products, err := uc.catalog.Products(ctx, cart.ProductIDs())
	if err != nil {
		return domain.Cart{}, nil, fmt.Errorf("catalog: %w", err)
	}
	fe := domain.FieldErrors{}
	out := domain.Cart{}
	names := make(map[string]string, len(cart.Items))
	for _, it := range cart.Items {
		p, ok := products[it.ProductID]
		if !ok || !p.Active {
			fe.Add("items."+it.ProductID, "is no longer available")
			continue
		}
		out = out.Put(p.CartItem(it.Quantity))
		names[p.ID] = p.Name
	}
	if !fe.Empty() {
		return domain.Cart{}, nil, &ValidationError{Fields: fe}
	}
	return out, names, nil
}

// decrementAll tries every line and reports all shortfalls together.
// Rows are touched in product id order so concurrent commits lock the same way.
func decrementAll(ctx context.Context, stock StockWriter, items []domain.OrderItem) error {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b domain.OrderItem) int { return strings.Compare(a.ProductID, b.ProductID) })

	var short []StockShortfall
	for _, it := range sorted {
		r, err := stock.DecrementIfAvailable(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return fmt.Errorf("decrement %s: %w", it.ProductID, err)
		}
		if !r.OK {
			short = append(short, StockShortfall{ProductID: it.ProductID, Requested: it.Quantity, Available: r.Remaining})
		}
	}
	if len(short) > 0 {
		return &StockConflictError{Lines: short}
	}
	return nil
}

func applyQuote(o *domain.Order, q pricing.Quote) {
	o.Subtotal = q.Subtotal
	o.Discount = q.Discount
	o.ShippingCost = q.ShippingCost
	o.Total = q.Total
}

func idemScope(sh domain.Shopper) string {
	if sh.IdentityID != "" {
		return "id:" + sh.IdentityID
	}
	return "device:" + sh.DeviceToken
}

// rowKey is the idempotency key as stored on the order row.
func rowKey(scope, key string) string {
	if key == "" {
		return ""
	}
	return scope + ":" + key
}

func commitOutcome(err error) string {
	var ve *ValidationError
	var sc *StockConflictError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &sc):
		return "stock_conflict"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrRetryable):
		return "retryable"
	}
	return "error"
}
