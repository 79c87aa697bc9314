package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aq2208/gcheckout-api/internal/adapter/http/middleware"
	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/gin-gonic/gin"
)

const IdempotencyKeyHeader = "X-Idempotency-Key"

type OrderCommitter interface {
	Execute(ctx context.Context, in usecase.CommitInput) (usecase.CommitOutput, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
}

type CheckoutHandler struct {
	commit OrderCommitter
}

func NewCheckoutHandler(commit OrderCommitter) *CheckoutHandler {
	return &CheckoutHandler{commit: commit}
}

type checkoutReq struct {
	ShippingInfo        domain.ShippingInfo `json:"shippingInfo"`
	PaymentMethod       string              `json:"paymentMethod"`
	PaymentSessionToken string              `json:"paymentSessionToken"`
	Notes               string              `json:"notes"`
	PromoCode           string              `json:"promoCode"`
}

// Checkout validates fields in the use case so every problem is reported at
// once; binding here only rejects malformed JSON.
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	// the commit bounds its own transaction; this only caps the whole request
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	out, err := h.commit.Execute(ctx, usecase.CommitInput{
		Shopper:             middleware.ShopperFrom(c),
		Shipping:            req.ShippingInfo,
		PaymentMethod:       req.PaymentMethod,
		PaymentSessionToken: req.PaymentSessionToken,
		Notes:               req.Notes,
		PromoCode:           req.PromoCode,
		IdempotencyKey:      c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", "/v1/orders/"+out.OrderID)
	c.JSON(http.StatusCreated, out)
}

// GetOrder serves the owner or an orders.admin. Other callers get 404 so
// order ids cannot be probed.
func (h *CheckoutHandler) GetOrder(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	o, err := h.commit.GetOrder(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	sh := middleware.ShopperFrom(c)
	if o.IdentityID != sh.IdentityID && !middleware.HasPerm(c, PermOrdersAdmin) {
		writeError(c, fmt.Errorf("order %s not owned by caller: %w", o.ID, usecase.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, o)
}
