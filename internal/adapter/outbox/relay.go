// Package outbox drains the outbox table written by the commit transaction.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/aq2208/gcheckout-api/internal/observ"
	"github.com/aq2208/gcheckout-api/internal/usecase"
)

// Publisher hands a record to its transport. Returning nil means the record
// is durable elsewhere and may be marked sent.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxRetries     int
	BaseBackoff    time.Duration
	Lease          time.Duration
	PublishTimeout time.Duration
}

const maxBackoff = 10 * time.Minute

type Relay struct {
	store usecase.OutboxStore
	pub   Publisher
	cfg   Config
	kick  chan struct{}
	now   func() time.Time
	log   *slog.Logger
}

func NewRelay(store usecase.OutboxStore, pub Publisher, cfg Config) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 2 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	return &Relay{
		store: store,
		pub:   pub,
		cfg:   cfg,
		kick:  make(chan struct{}, 1),
		now:   time.Now,
		log:   logging.New("outbox-relay"),
	}
}

// Kick asks for an immediate drain without blocking the caller.
func (r *Relay) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()
	r.log.Info("relay started", "poll", r.cfg.PollInterval.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopped")
			return
		case <-t.C:
		case <-r.kick:
		}
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("drain failed", "err", err)
		}
	}
}

// Drain publishes due records batch by batch until none are left and
// returns how many were sent.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	sent := 0
	for {
		recs, err := r.store.ClaimDue(ctx, r.now(), r.cfg.Lease, r.cfg.BatchSize)
		if err != nil {
			return sent, err
		}
		for _, rec := range recs {
			if r.publish(ctx, rec) {
				sent++
			}
		}
		if len(recs) < r.cfg.BatchSize {
			return sent, nil
		}
	}
}

func (r *Relay) publish(ctx context.Context, rec usecase.OutboxRecord) bool {
	l := r.log.With("outbox_id", rec.ID, "channel", rec.Channel)
	pctx, cancel := context.WithTimeout(logging.WithCtx(ctx, l), r.cfg.PublishTimeout)
	err := r.pub.Publish(pctx, rec.Channel, rec.Payload)
	cancel()

	if err == nil {
		if merr := r.store.MarkSent(ctx, rec.ID, r.now()); merr != nil {
			// lease expiry makes it due again; consumers are idempotent
			l.Warn("mark sent failed", "err", merr)
		}
		observ.OutboxPublishTotal.WithLabelValues("sent").Inc()
		return true
	}

	attempt := rec.RetryCount + 1
	if attempt >= r.cfg.MaxRetries {
		observ.OutboxPublishTotal.WithLabelValues("failed").Inc()
		l.Error("giving up on outbox record", "attempts", attempt, "err", err)
		if merr := r.store.MarkFailed(ctx, rec.ID, attempt, err.Error()); merr != nil {
			l.Warn("mark failed failed", "err", merr)
		}
		return false
	}

	next := r.now().Add(Backoff(r.cfg.BaseBackoff, attempt))
	observ.OutboxPublishTotal.WithLabelValues("retry").Inc()
	l.Warn("publish failed, rescheduled", "attempt", attempt, "next", next, "err", err)
	if merr := r.store.Reschedule(ctx, rec.ID, attempt, next, err.Error()); merr != nil {
		l.Warn("reschedule failed", "err", merr)
	}
	return false
}

// Backoff is base * 2^(attempt-1), capped at ten minutes.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
