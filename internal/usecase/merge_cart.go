package usecase

import (
	"context"
	"fmt"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/aq2208/gcheckout-api/internal/observ"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type MergeResult struct {
	Cart     domain.Cart `json:"cart"`
	Merged   bool        `json:"merged"`
	Warnings []string    `json:"warnings,omitempty"`
}

// MergeCart folds the device cart into the identity cart on login.
type MergeCart struct {
	tiers CartTiers
	lock  MergeLock
	stock StockReader
}

func NewMergeCart(tiers CartTiers, lock MergeLock, stock StockReader) *MergeCart {
	return &MergeCart{tiers: tiers, lock: lock, stock: stock}
}

func (m *MergeCart) Execute(ctx context.Context, sh domain.Shopper) (res MergeResult, err error) {
	if sh.IdentityID == "" || sh.DeviceToken == "" {
		fe := domain.FieldErrors{}
		if sh.IdentityID == "" {
			fe.Add("identity", "is required")
		}
		if sh.DeviceToken == "" {
			fe.Add("deviceToken", "is required")
		}
		return MergeResult{}, &ValidationError{Fields: fe}
	}

	ctx, span := observ.Tracer().Start(ctx, "cart.merge")
	defer func() {
		outcome := "noop"
		switch {
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res.Merged:
			outcome = "merged"
		}
		span.SetAttributes(attribute.String("merge.outcome", outcome))
		span.End()
		observ.MergesTotal.WithLabelValues(outcome).Inc()
	}()
	log := logging.FromCtx(ctx).With("identity_id", sh.IdentityID)

	release, err := m.lock.Acquire(ctx, sh.IdentityID)
	if err != nil {
		return MergeResult{}, fmt.Errorf("%w: merge lock: %v", ErrRetryable, err)
	}
	defer release()

	anon, err := m.tiers.Anon.Take(ctx, sh.DeviceToken)
	if err != nil {
		return MergeResult{}, fmt.Errorf("take anonymous cart: %w", err)
	}
	owned, err := m.tiers.Owned.Load(ctx, sh.IdentityID)
	if err != nil {
		m.restore(ctx, sh.DeviceToken, anon)
		return MergeResult{}, fmt.Errorf("load identity cart: %w", err)
	}
	if anon.IsEmpty() {
		return MergeResult{Cart: nonNil(owned)}, nil
	}

	merged := domain.Merge(anon, owned)
	if err := m.tiers.Owned.Save(ctx, sh.IdentityID, merged); err != nil {
		m.restore(ctx, sh.DeviceToken, anon)
		log.Error("merged cart save failed", "err", err)
		return MergeResult{}, fmt.Errorf("%w: %v", ErrCartNotSaved, err)
	}
	log.Info("cart merged", "anon_lines", len(anon.Items), "lines", len(merged.Items))

	return MergeResult{Cart: merged, Merged: true, Warnings: m.overStock(ctx, merged)}, nil
}

// restore puts the taken anonymous cart back so a failed merge can be retried.
func (m *MergeCart) restore(ctx context.Context, token string, anon domain.Cart) {
	if anon.IsEmpty() {
		return
	}
	if err := m.tiers.Anon.Save(ctx, token, anon); err != nil {
		logging.FromCtx(ctx).Error("anonymous cart restore failed", "err", err)
	}
}

// overStock lists merged lines above current stock. Quantities are left as
// merged; commit re-validates them.
func (m *MergeCart) overStock(ctx context.Context, c domain.Cart) []string {
	avail, err := m.stock.Available(ctx, c.ProductIDs())
	if err != nil {
		logging.FromCtx(ctx).Warn("stock read after merge failed", "err", err)
		return nil
	}
	var out []string
	for _, it := range c.Items {
		if n := avail[it.ProductID]; it.Quantity > n {
			out = append(out, fmt.Sprintf("only %d of %s in stock, you have %d", n, it.ProductID, it.Quantity))
		}
	}
	return out
}

func nonNil(c domain.Cart) domain.Cart {
	if c.Items == nil {
		c.Items = []domain.CartItem{}
	}
	return c
}
