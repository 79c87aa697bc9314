package kafka

import (
	"context"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/aq2208/gcheckout-api/internal/usecase"
)

// StockBulkSetter is the Inventory use case as seen by the feed.
type StockBulkSetter interface {
	BulkSet(ctx context.Context, items []domain.StockAdjustment) (domain.BulkSetResult, error)
}

// StockSnapshotHandler applies warehouse counts to the ledger. Rejected rows
// are logged and skipped; only infrastructure errors stop the partition.
type StockSnapshotHandler struct {
	Inventory StockBulkSetter
}

func NewStockSnapshotHandler(inv StockBulkSetter) *StockSnapshotHandler {
	return &StockSnapshotHandler{Inventory: inv}
}

func (h *StockSnapshotHandler) Handle(ctx context.Context, ev usecase.StockSnapshotMsg) error {
	if len(ev.Items) == 0 {
		return nil
	}
	res, err := h.Inventory.BulkSet(ctx, ev.Items)
	if err != nil {
		return err
	}
	log := logging.FromCtx(ctx).With("warehouse", ev.Warehouse)
	for _, e := range res.Errors {
		log.Warn("stock row rejected", "product_id", e.ProductID, "reason", e.Reason)
	}
	log.Info("stock snapshot applied", "updated", res.UpdatedCount, "rejected", len(res.Errors))
	return nil
}
