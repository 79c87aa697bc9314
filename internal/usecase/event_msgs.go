package usecase

import (
	"time"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/shopspring/decimal"
)

// Outbox channels; they double as RabbitMQ routing keys.
const (
	ChannelLoyaltyAward     = "loyalty.award.v1"
	ChannelReferralComplete = "referral.complete.v1"
)

// OrderPlacedMsg is written to the outbox in the commit transaction.
type OrderPlacedMsg struct {
	OrderID    string          `json:"orderId"`
	IdentityID string          `json:"identityId"`
	Total      decimal.Decimal `json:"total"`
	PlacedAt   time.Time       `json:"placedAt"`
}

// StockSnapshotMsg is the warehouse feed: absolute available counts.
type StockSnapshotMsg struct {
	Warehouse string                   `json:"warehouse"`
	Items     []domain.StockAdjustment `json:"items"`
	TakenAt   time.Time                `json:"takenAt"`
}
