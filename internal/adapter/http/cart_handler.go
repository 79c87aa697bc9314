package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aq2208/gcheckout-api/internal/adapter/http/middleware"
	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/gin-gonic/gin"
)

const cartTimeout = 3 * time.Second

type CartAPI interface {
	Get(ctx context.Context, sh domain.Shopper, promoCode string) (usecase.CartView, error)
	Quote(ctx context.Context, sh domain.Shopper, promoCode string) (usecase.CartView, error)
	Add(ctx context.Context, sh domain.Shopper, productID string, delta int) (usecase.CartView, error)
	SetQuantity(ctx context.Context, sh domain.Shopper, productID string, qty int) (usecase.CartView, error)
	Remove(ctx context.Context, sh domain.Shopper, productID string) (usecase.CartView, error)
	Clear(ctx context.Context, sh domain.Shopper) (usecase.CartView, error)
}

type CartMerger interface {
	Execute(ctx context.Context, sh domain.Shopper) (usecase.MergeResult, error)
}

type CartHandler struct {
	carts  CartAPI
	merger CartMerger
}

func NewCartHandler(carts CartAPI, merger CartMerger) *CartHandler {
	return &CartHandler{carts: carts, merger: merger}
}

type addItemReq struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type setQuantityReq struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type quoteReq struct {
	PromoCode string `json:"promoCode"`
}

func (h *CartHandler) Get(c *gin.Context) {
	h.respond(c, func(ctx context.Context, sh domain.Shopper) (usecase.CartView, error) {
		return h.carts.Get(ctx, sh, c.Query("promo"))
	})
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req addItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, func(ctx context.Context, sh domain.Shopper) (usecase.CartView, error) {
		return h.carts.Add(ctx, sh, req.ProductID, req.Quantity)
	})
}

func (h *CartHandler) SetQuantity(c *gin.Context) {
	var req setQuantityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, func(ctx context.Context, sh domain.Shopper) (usecase.CartView, error) {
		return h.carts.SetQuantity(ctx, sh, c.Param("productId"), *req.Quantity)
	})
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	h.respond(c, func(ctx context.Context, sh domain.Shopper) (usecase.CartView, error) {
		return h.carts.Remove(ctx, sh, c.Param("productId"))
	})
}

func (h *CartHandler) Clear(c *gin.Context) {
	h.respond(c, func(ctx context.Context, sh domain.Shopper) (usecase.CartView, error) {
		return h.carts.Clear(ctx, sh)
	})
}

func (h *CartHandler) Quote(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, func(ctx context.Context, sh domain.Shopper) (usecase.CartView, error) {
		return h.carts.Quote(ctx, sh, req.PromoCode)
	})
}

// Merge runs after login: bearer identity plus the device token of the
// anonymous cart. A second call finds nothing to merge.
func (h *CartHandler) Merge(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), cartTimeout)
	defer cancel()

	res, err := h.merger.Execute(ctx, middleware.ShopperFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *CartHandler) respond(c *gin.Context, call func(context.Context, domain.Shopper) (usecase.CartView, error)) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), cartTimeout)
	defer cancel()

	view, err := call(ctx, middleware.ShopperFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
