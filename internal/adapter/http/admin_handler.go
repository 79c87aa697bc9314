package http

import (
	"context"
	"net/http"
	"time"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/gin-gonic/gin"
)

const (
	PermOrdersAdmin    = "orders.admin"
	PermInventoryAdmin = "inventory.admin"
)

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, to domain.Status) (*domain.Order, error)
}

type StockBulkSetter interface {
	BulkSet(ctx context.Context, items []domain.StockAdjustment) (domain.BulkSetResult, error)
}

type AdminHandler struct {
	orders    StatusUpdater
	inventory StockBulkSetter
}

func NewAdminHandler(orders StatusUpdater, inventory StockBulkSetter) *AdminHandler {
	return &AdminHandler{orders: orders, inventory: inventory}
}

type updateStatusReq struct {
	Status string `json:"status" binding:"required"`
}

func (h *AdminHandler) UpdateOrderStatus(c *gin.Context) {
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	to, err := domain.ParseStatus(req.Status)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	o, err := h.orders.UpdateStatus(ctx, c.Param("id"), to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// BulkSetStock always answers 200 when the batch was processed; rejected rows
// are listed in errors next to the count of applied ones.
func (h *AdminHandler) BulkSetStock(c *gin.Context) {
	var items []domain.StockAdjustment
	if err := c.ShouldBindJSON(&items); err != nil {
		badRequest(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	res, err := h.inventory.BulkSet(ctx, items)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Errors == nil {
		res.Errors = []domain.BulkSetError{}
	}
	c.JSON(http.StatusOK, res)
}
