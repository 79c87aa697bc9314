package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/redis/go-redis/v9"
)

// RedisAnonCartStore keeps device carts as JSON under cart:anon:<token>.
// Every save refreshes the TTL, so abandoned carts expire on their own.
type RedisAnonCartStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisAnonCartStore(rdb *redis.Client, ttl time.Duration) *RedisAnonCartStore {
	return &RedisAnonCartStore{rdb: rdb, ttl: ttl}
}

func anonKey(token string) string { return "cart:anon:" + token }

func (s *RedisAnonCartStore) Load(ctx context.Context, token string) (domain.Cart, error) {
	raw, err := s.rdb.Get(ctx, anonKey(token)).Bytes()
	return decodeCart(raw, err)
}

func (s *RedisAnonCartStore) Save(ctx context.Context, token string, c domain.Cart) error {
	if c.IsEmpty() {
		return s.Delete(ctx, token)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return s.rdb.Set(ctx, anonKey(token), raw, s.ttl).Err()
}

func (s *RedisAnonCartStore) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, anonKey(token)).Err()
}

// Take is GETDEL: of two racing merges only one sees the lines.
func (s *RedisAnonCartStore) Take(ctx context.Context, token string) (domain.Cart, error) {
	raw, err := s.rdb.GetDel(ctx, anonKey(token)).Bytes()
	return decodeCart(raw, err)
}

func decodeCart(raw []byte, err error) (domain.Cart, error) {
	if errors.Is(err, redis.Nil) {
		return domain.Cart{Items: []domain.CartItem{}}, nil
	}
	if err != nil {
		return domain.Cart{}, err
	}
	var c domain.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	if c.Items == nil {
		c.Items = []domain.CartItem{}
	}
	return c, nil
}

var _ usecase.AnonCartRepo = (*RedisAnonCartStore)(nil)
