package cache

import (
	"context"
	"errors"
	"time"

	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisMergeLock is a per-identity mutex: SET NX PX with an owner token.
// The TTL bounds how long a crashed holder can block others.
type RedisMergeLock struct {
	rdb   *redis.Client
	ttl   time.Duration
	wait  time.Duration
	retry time.Duration
}

func NewRedisMergeLock(rdb *redis.Client, ttl, wait time.Duration) *RedisMergeLock {
	return &RedisMergeLock{rdb: rdb, ttl: ttl, wait: wait, retry: 25 * time.Millisecond}
}

var ErrLockTimeout = errors.New("merge lock not acquired in time")

func (l *RedisMergeLock) Acquire(ctx context.Context, identityID string) (func(), error) {
	key := "lock:merge:" + identityID
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, key, owner, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		if err := releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{key}, owner).Err(); err != nil {
			logging.FromCtx(ctx).Warn("merge lock release failed", "identity_id", identityID, "err", err)
		}
	}, nil
}

var _ usecase.MergeLock = (*RedisMergeLock)(nil)
