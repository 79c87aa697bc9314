package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/logging"
)

type AdminOrders struct {
	uow UnitOfWork
	now func() time.Time
}

func NewAdminOrders(uow UnitOfWork) *AdminOrders {
	return &AdminOrders{uow: uow, now: time.Now}
}

// UpdateStatus moves an order along the status machine. Cancelling puts the
// order's quantities back on the ledger in the same transaction.
func (a *AdminOrders) UpdateStatus(ctx context.Context, id string, to domain.Status) (*domain.Order, error) {
	var updated *domain.Order
	err := a.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
		}
		at := a.now().UTC()
		ok, err := tx.Orders().UpdateStatusIf(ctx, id, o.Status, to, at)
		if err != nil {
			return err
		}
		if !ok {
			// someone else moved it between read and update
			return fmt.Errorf("%w: order %s changed concurrently", ErrRetryable, id)
		}
		if to == domain.StatusCancelled {
			for _, it := range o.Items {
				if err := tx.Stock().Restock(ctx, it.ProductID, it.Quantity); err != nil {
					return fmt.Errorf("restock %s: %w", it.ProductID, err)
				}
			}
		}
		o.Status = to
		o.UpdatedAt = at
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromCtx(ctx).Info("order status updated", "order_id", id, "status", to)
	return updated, nil
}

type Inventory struct {
	ledger StockLedger
}

func NewInventory(ledger StockLedger) *Inventory {
	return &Inventory{ledger: ledger}
}

// BulkSet applies absolute stock counts. Rows are validated and applied one by
// one; a bad row is reported and does not stop the others.
func (inv *Inventory) BulkSet(ctx context.Context, items []domain.StockAdjustment) (domain.BulkSetResult, error) {
	res := domain.BulkSetResult{Errors: []domain.BulkSetError{}}
	valid := make([]domain.StockAdjustment, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		it.ProductID = strings.TrimSpace(it.ProductID)
		switch {
		case it.ProductID == "":
			res.Errors = append(res.Errors, domain.BulkSetError{ProductID: it.ProductID, Reason: "id is required"})
		case it.Stock < 0:
			res.Errors = append(res.Errors, domain.BulkSetError{ProductID: it.ProductID, Reason: "stock must be >= 0"})
		case seen[it.ProductID]:
			res.Errors = append(res.Errors, domain.BulkSetError{ProductID: it.ProductID, Reason: "duplicate id in request"})
		default:
			seen[it.ProductID] = true
			valid = append(valid, it)
		}
	}
	if len(valid) == 0 {
		return res, nil
	}

	applied, err := inv.ledger.BulkSet(ctx, valid)
	if err != nil {
		return domain.BulkSetResult{}, err
	}
	res.UpdatedCount = applied.UpdatedCount
	res.Errors = append(res.Errors, applied.Errors...)
	logging.FromCtx(ctx).Info("stock bulk set", "updated", res.UpdatedCount, "errors", len(res.Errors))
	return res, nil
}
