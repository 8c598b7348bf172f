package statestore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const numShards = 64

// MemoryStore is the in-process fallback Store. It is safe for concurrent
// use within one process but NOT across multiple service instances: each
// instance would count alone. Use Redis for any multi-instance deployment.
type MemoryStore struct {
	now    func() time.Time
	shards [numShards]shard
}

type shard struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	val       string
	expiresAt time.Time // zero means no expiry
}

var _ Store = (*MemoryStore)(nil)

func NewMemory() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].m = make(map[string]entry)
	}
	return s
}

// NewMemoryWithClock injects a clock, for tests.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	s := NewMemory()
	s.now = now
	return s
}

func (s *MemoryStore) pick(key string) *shard {
	h := xxhash.Sum64String(key)
	return &s.shards[h&(numShards-1)]
}

// live returns the entry at key if present and unexpired, pruning it
// otherwise. Caller holds the shard lock.
func (sh *shard) live(key string, now time.Time) (entry, bool) {
	e, ok := sh.m[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		delete(sh.m, key)
		return entry{}, false
	}
	return e, true
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	sh := s.pick(key)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	var n int64
	e, ok := sh.live(key, now)
	if ok {
		prev, err := strconv.ParseInt(e.val, 10, 64)
		if err != nil {
			return 0, err
		}
		n = prev + 1
		e.val = strconv.FormatInt(n, 10)
		sh.m[key] = e
		return n, nil
	}
	n = 1
	exp := time.Time{}
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	sh.m[key] = entry{val: "1", expiresAt: exp}
	return n, nil
}

func (s *MemoryStore) IncrByFloat(_ context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	sh := s.pick(key)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.live(key, now)
	if ok {
		prev, err := strconv.ParseFloat(e.val, 64)
		if err != nil {
			return 0, err
		}
		f := prev + delta
		e.val = strconv.FormatFloat(f, 'f', -1, 64)
		sh.m[key] = e
		return f, nil
	}
	exp := time.Time{}
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	sh.m[key] = entry{val: strconv.FormatFloat(delta, 'f', -1, 64), expiresAt: exp}
	return delta, nil
}

func (s *MemoryStore) GetInt(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (s *MemoryStore) GetFloat(ctx context.Context, key string) (float64, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, err
	}
	return f, true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	sh := s.pick(key)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.live(key, now)
	if !ok {
		return "", false, nil
	}
	return e.val, true, nil
}

func (s *MemoryStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	sh := s.pick(key)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	exp := time.Time{}
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	sh.m[key] = entry{val: value, expiresAt: exp}
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	sh := s.pick(key)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.live(key, now); ok {
		return false, nil
	}
	exp := time.Time{}
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	sh.m[key] = entry{val: value, expiresAt: exp}
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		sh := s.pick(key)
		sh.mu.Lock()
		delete(sh.m, key)
		sh.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
