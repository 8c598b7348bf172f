package statestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openterrain/resolver/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

// RedisStore implements Store on a shared Redis, safe across concurrent
// service instances.
type RedisStore struct {
	rdb *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedis(ctx context.Context, addr string, opts ...Option) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveStateOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	start := time.Now()
	val, err := s.rdb.Incr(ctx, key).Result()
	observability.ObserveStateOp("incr", err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("redis INCR %q: %w", key, err)
	}
	// first writer of the window stamps the TTL; a duplicate stamp from a
	// concurrent first writer sets the same expiry
	if val == 1 && ttl > 0 {
		if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return val, fmt.Errorf("redis EXPIRE %q: %w", key, err)
		}
	}
	return val, nil
}

func (s *RedisStore) IncrByFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	start := time.Now()
	val, err := s.rdb.IncrByFloat(ctx, key, delta).Result()
	observability.ObserveStateOp("incrbyfloat", err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("redis INCRBYFLOAT %q: %w", key, err)
	}
	if ttl > 0 {
		// no first-write signal from INCRBYFLOAT; refresh expiry only when
		// the key has none yet
		if err := s.rdb.ExpireNX(ctx, key, ttl).Err(); err != nil {
			return val, fmt.Errorf("redis EXPIRE NX %q: %w", key, err)
		}
	}
	return val, nil
}

func (s *RedisStore) GetInt(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse int at %q: %w", key, err)
	}
	return n, true, nil
}

func (s *RedisStore) GetFloat(ctx context.Context, key string) (float64, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse float at %q: %w", key, err)
	}
	return f, true, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		observability.ObserveStateOp("get", nil, time.Since(start).Seconds())
		return "", false, nil
	}
	observability.ObserveStateOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return "", false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	return raw, true, nil
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	start := time.Now()
	err := s.rdb.Set(ctx, key, value, ttl).Err()
	observability.ObserveStateOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	observability.ObserveStateOp("setnx", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("redis SETNX %q: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := s.rdb.Del(ctx, keys...).Err()
	observability.ObserveStateOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
