// Package statestore provides the atomic shared store backing circuit
// breakers and rate/cost counters.
//
// Two implementations exist: Redis for multi-instance deployments, and an
// in-memory store for single-instance and development use. They are selected
// at startup and never mixed at runtime.
package statestore

import (
	"context"
	"time"
)

// Store is the atomic key/value contract. All mutations are read-modify-write
// on the backing store itself, so counts stay correct with concurrent callers
// across process boundaries.
type Store interface {
	// Incr atomically increments the integer at key and returns the new
	// value. On the first increment of a key, ttl is applied so window
	// counters self-expire.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// IncrByFloat is Incr for floating-point accumulators.
	IncrByFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error)

	GetInt(ctx context.Context, key string) (int64, bool, error)
	GetFloat(ctx context.Context, key string) (float64, bool, error)
	Get(ctx context.Context, key string) (string, bool, error)

	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores value only when key is absent. Returns whether the
	// write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	Delete(ctx context.Context, keys ...string) error

	Close() error
}
