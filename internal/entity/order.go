package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

var ErrUnknownStatus = errors.New("unknown order status")

// transitions lists the admin-initiated moves out of each status.
// Delivered and Cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered, StatusCancelled},
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

type ShippingInfo struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Validate reports every missing or malformed field at once.
func (s ShippingInfo) Validate() FieldErrors {
	fe := FieldErrors{}
	required := []struct{ field, value string }{
		{"shippingInfo.name", s.Name},
		{"shippingInfo.email", s.Email},
		{"shippingInfo.address", s.Address},
		{"shippingInfo.city", s.City},
		{"shippingInfo.postalCode", s.PostalCode},
		{"shippingInfo.country", s.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			fe.Add(r.field, "is required")
		}
	}
	if s.Email != "" {
		if addr, err := mail.ParseAddress(s.Email); err != nil || addr.Address != s.Email {
			fe.Add("shippingInfo.email", "is not a valid email address")
		}
	}
	return fe
}

// OrderItem is frozen at commit time; later catalog edits do not touch it.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID            string          `json:"id"`
	IdentityID    string          `json:"identityId,omitempty"` // empty for guest checkout
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Status        Status          `json:"status"`
	Shipping      ShippingInfo    `json:"shippingInfo"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentRef    string          `json:"paymentRef,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	PromoCode     string          `json:"promoCode,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	ShippingCost  decimal.Decimal `json:"shippingCost"`
	Total         decimal.Decimal `json:"total"`
	Items         []OrderItem     `json:"items"`
}

func (o *Order) IsGuest() bool { return o.IdentityID == "" }

// Validate guards the persisted shape: at least one item and a non-negative total.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return ErrEmptyOrder
	}
	if o.Total.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyOrder    = errors.New("order has no items")
)
