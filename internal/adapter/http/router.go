package http

import (
	"log/slog"
	"net/http"

	"github.com/aq2208/gcheckout-api/internal/adapter/http/middleware"
	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Admin    *AdminHandler
}

func NewRouter(log *slog.Logger, authz *middleware.Authz, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(), middleware.Tracing(), limitBody(maxBodyBytes))
	r.Use(middleware.Logging(log), authz.Identify())

	r.GET("/healthz", func(c *gin.Context) {
		logging.From(c).Debug("health check")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	// Prometheus endpoint (scraped by Prometheus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		cart := v1.Group("/cart")
		cart.GET("", h.Cart.Get)
		cart.DELETE("", h.Cart.Clear)
		cart.POST("/items", h.Cart.AddItem)
		cart.PUT("/items/:productId", h.Cart.SetQuantity)
		cart.DELETE("/items/:productId", h.Cart.RemoveItem)
		cart.POST("/quote", h.Cart.Quote)
		cart.POST("/merge", authz.Require(), h.Cart.Merge)

		v1.POST("/checkout", h.Checkout.Checkout)
		v1.GET("/orders/:id", authz.Require(), h.Checkout.GetOrder)

		admin := v1.Group("/admin")
		admin.PATCH("/orders/:id", authz.Require(PermOrdersAdmin), h.Admin.UpdateOrderStatus)
		admin.POST("/inventory/bulk", authz.Require(PermInventoryAdmin), h.Admin.BulkSetStock)
	}

	return r
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
