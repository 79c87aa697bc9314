package usecase

import (
	"context"
	"time"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/shopspring/decimal"
)

// CartRepo persists one cart per key (identity id or device token).
type CartRepo interface {
	Load(ctx context.Context, key string) (domain.Cart, error)
	Save(ctx context.Context, key string, c domain.Cart) error
	Delete(ctx context.Context, key string) error
}

// AnonCartRepo is the device-keyed tier. Take reads and removes the cart in
// one atomic step so a cart can only ever be merged once.
type AnonCartRepo interface {
	CartRepo
	Take(ctx context.Context, key string) (domain.Cart, error)
}

// Catalog is the read side of the product catalog. Unknown ids are absent
// from the returned map.
type Catalog interface {
	Products(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type StockReader interface {
	Available(ctx context.Context, ids []string) (map[string]int, error)
}

type StockLedger interface {
	StockReader
	CheckAvailable(ctx context.Context, productID string, qty int) (bool, error)
	DecrementIfAvailable(ctx context.Context, productID string, qty int) (domain.DecrementResult, error)
	BulkSet(ctx context.Context, items []domain.StockAdjustment) (domain.BulkSetResult, error)
}

// MergeLock serializes merges per identity. Acquire blocks until the lock is
// held or ctx is done.
type MergeLock interface {
	Acquire(ctx context.Context, identityID string) (release func(), err error)
}

type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Unlock(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, idemKey string) (*domain.Order, error)
}

// UnitOfWork runs fn inside one storage transaction. A non-nil error from fn
// rolls everything back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the writers bound to the running transaction.
type Tx interface {
	Stock() StockWriter
	Orders() OrderWriter
	Promos() PromoWriter
	Outbox() OutboxWriter
}

type StockWriter interface {
	DecrementIfAvailable(ctx context.Context, productID string, qty int) (domain.DecrementResult, error)
	Restock(ctx context.Context, productID string, qty int) error
}

type OrderWriter interface {
	OrderReader
	Create(ctx context.Context, o *domain.Order, idemKey string) error
	UpdateStatusIf(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error)
}

type PromoWriter interface {
	// Consume bumps the usage counter only while the code is still usable.
	Consume(ctx context.Context, code string, now time.Time) (bool, error)
}

type OutboxWriter interface {
	Enqueue(ctx context.Context, channel string, payload []byte) error
}

// LoyaltyRepo.Award is idempotent on (OrderID, Reason); inserted is false when
// the entry already existed.
type LoyaltyRepo interface {
	Award(ctx context.Context, e domain.LoyaltyEntry) (inserted bool, err error)
}

// ReferralRepo.Complete moves a pending referral of referredID to completed and
// credits the referrer, atomically. It reports false when nothing was pending
// or when orderID is not the shopper's earliest order of at least minTotal.
type ReferralRepo interface {
	Complete(ctx context.Context, referredID, orderID string, minTotal decimal.Decimal, bonus int64, at time.Time) (bool, error)
}

// Kicker wakes the outbox relay after a commit.
type Kicker interface {
	Kick()
}

type OutboxRecord struct {
	ID         int64
	Channel    string
	Payload    []byte
	RetryCount int
}

// OutboxStore is the relay's view of the outbox table.
type OutboxStore interface {
	// ClaimDue leases up to limit due PENDING records by pushing their next
	// attempt to now+lease; a record is claimed by at most one relay.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	Reschedule(ctx context.Context, id int64, retryCount int, next time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id int64, retryCount int, lastErr string) error
}
