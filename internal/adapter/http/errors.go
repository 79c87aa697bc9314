package http

import (
	"errors"
	"net/http"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/gin-gonic/gin"
)

// retryAfterSeconds is sent with every 503 the client is expected to retry.
const retryAfterSeconds = "1"

// writeError is the single place use case errors become status codes.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var verr *usecase.ValidationError
	var conflict *usecase.StockConflictError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "fields": verr.Fields})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": "stock_conflict", "lines": conflict.Lines})
	case errors.Is(err, usecase.ErrRetryable):
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "retry_later"})
	case errors.Is(err, usecase.ErrCartNotSaved):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cart_not_saved", "message": usecase.ErrCartNotSaved.Error()})
	case errors.Is(err, usecase.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, usecase.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "message": err.Error()})
	case errors.Is(err, usecase.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_request"})
	case errors.Is(err, usecase.ErrNoShopper):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_shopper", "message": "send a bearer token or an X-Device-Token header"})
	case errors.Is(err, domain.ErrUnknownStatus):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "fields": domain.FieldErrors{"status": {"is not a known status"}}})
	default:
		logging.From(c).Error("unhandled error", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
}
