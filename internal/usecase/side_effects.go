package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/aq2208/gcheckout-api/internal/observ"
	"github.com/shopspring/decimal"
)

type DispatcherConfig struct {
	PointsPerUnit    int64
	ReferralBonus    int64
	MinReferralTotal decimal.Decimal
}

// Dispatcher runs the post-commit effects. Both operations are idempotent per
// order, so redelivery from the outbox or the queue is harmless. Errors are
// returned to the transport for retry and never reach the shopper.
type Dispatcher struct {
	loyalty   LoyaltyRepo
	referrals ReferralRepo
	cfg       DispatcherConfig
	now       func() time.Time
}

func NewDispatcher(loyalty LoyaltyRepo, referrals ReferralRepo, cfg DispatcherConfig) *Dispatcher {
	if cfg.PointsPerUnit <= 0 {
		cfg.PointsPerUnit = 1
	}
	return &Dispatcher{loyalty: loyalty, referrals: referrals, cfg: cfg, now: time.Now}
}

func (d *Dispatcher) AwardLoyalty(ctx context.Context, msg OrderPlacedMsg) error {
	log := logging.FromCtx(ctx).With("order_id", msg.OrderID, "identity_id", msg.IdentityID)
	points := domain.PointsFor(msg.Total, d.cfg.PointsPerUnit)
	if msg.IdentityID == "" || points <= 0 {
		observ.SideEffectsTotal.WithLabelValues("loyalty", "skipped").Inc()
		return nil
	}
	inserted, err := d.loyalty.Award(ctx, domain.LoyaltyEntry{
		IdentityID: msg.IdentityID,
		Delta:      points,
		Reason:     domain.ReasonOrderPoints,
		OrderID:    msg.OrderID,
		CreatedAt:  d.now().UTC(),
	})
	if err != nil {
		observ.SideEffectsTotal.WithLabelValues("loyalty", "error").Inc()
		log.Error("loyalty award failed", "err", err)
		return err
	}
	if !inserted {
		observ.SideEffectsTotal.WithLabelValues("loyalty", "duplicate").Inc()
		log.Debug("loyalty already awarded")
		return nil
	}
	observ.SideEffectsTotal.WithLabelValues("loyalty", "ok").Inc()
	log.Info("loyalty awarded", "points", points)
	return nil
}

// CompleteReferral completes the shopper's pending referral when the order
// qualifies, crediting the referrer once.
func (d *Dispatcher) CompleteReferral(ctx context.Context, msg OrderPlacedMsg) error {
	log := logging.FromCtx(ctx).With("order_id", msg.OrderID, "identity_id", msg.IdentityID)
	if msg.IdentityID == "" || msg.Total.LessThan(d.cfg.MinReferralTotal) {
		observ.SideEffectsTotal.WithLabelValues("referral", "skipped").Inc()
		return nil
	}
	done, err := d.referrals.Complete(ctx, msg.IdentityID, msg.OrderID, d.cfg.MinReferralTotal, d.cfg.ReferralBonus, d.now().UTC())
	if err != nil {
		observ.SideEffectsTotal.WithLabelValues("referral", "error").Inc()
		log.Error("referral completion failed", "err", err)
		return err
	}
	if !done {
		observ.SideEffectsTotal.WithLabelValues("referral", "none_pending").Inc()
		return nil
	}
	observ.SideEffectsTotal.WithLabelValues("referral", "ok").Inc()
	log.Info("referral completed", "bonus", d.cfg.ReferralBonus)
	return nil
}

// Handle routes a raw outbox record to its effect.
func (d *Dispatcher) Handle(ctx context.Context, channel string, payload []byte) error {
	var msg OrderPlacedMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode %s: %w", channel, err)
	}
	switch channel {
	case ChannelLoyaltyAward:
		return d.AwardLoyalty(ctx, msg)
	case ChannelReferralComplete:
		return d.CompleteReferral(ctx, msg)
	}
	return fmt.Errorf("unknown channel %q", channel)
}
