package usecase

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
)

var (
	ErrDuplicate         = errors.New("duplicate idempotency key")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRetryable         = errors.New("temporarily unavailable, retry")
	ErrCartNotSaved      = errors.New("could not save: your changes may not persist")
	ErrNoShopper         = errors.New("request carries neither identity nor device token")
)

// ValidationError is field-scoped and never accompanied by a state change.
type ValidationError struct {
	Fields domain.FieldErrors
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields.Fields(), ", ")
}

func newValidation(field, msg string) *ValidationError {
	fe := domain.FieldErrors{}
	fe.Add(field, msg)
	return &ValidationError{Fields: fe}
}

type StockShortfall struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// StockConflictError names every line that could not be satisfied.
type StockConflictError struct {
	Lines []StockShortfall
}

func (e *StockConflictError) Error() string {
	parts := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		parts[i] = fmt.Sprintf("%s (requested %d, available %d)", l.ProductID, l.Requested, l.Available)
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *StockConflictError) ProductIDs() []string {
	ids := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		ids[i] = l.ProductID
	}
	return ids
}
