package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReasonOrderPoints   = "order"
	ReasonReferralBonus = "referral"
)

// LoyaltyEntry is an append-only ledger row. (OrderID, Reason) is unique.
type LoyaltyEntry struct {
	IdentityID string
	Delta      int64
	Reason     string
	OrderID    string
	CreatedAt  time.Time
}

// PointsFor returns floor(total) * perUnit, never negative.
func PointsFor(total decimal.Decimal, perUnit int64) int64 {
	if total.IsNegative() || perUnit <= 0 {
		return 0
	}
	return total.Floor().IntPart() * perUnit
}

type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralCompleted ReferralStatus = "completed"
)

type Referral struct {
	ReferrerID       string
	ReferredID       string
	Status           ReferralStatus
	CompletedOrderID string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}
