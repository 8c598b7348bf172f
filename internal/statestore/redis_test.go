package statestore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// newMini spins up a miniredis and connects a store to it.
func newMini(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	s, err := NewRedis(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedis_RequiresAddr(t *testing.T) {
	if _, err := NewRedis(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestRedis_IncrSetsTTLOnFirstWrite(t *testing.T) {
	s, mr := newMini(t)
	ctx := context.Background()

	n, err := s.Incr(ctx, "rate:x:sec", 2*time.Second)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if n != 1 {
		t.Fatalf("Incr=%d want 1", n)
	}
	if ttl := mr.TTL("rate:x:sec"); ttl != 2*time.Second {
		t.Fatalf("ttl=%v want 2s", ttl)
	}

	// subsequent increments neither reset nor extend the window
	mr.FastForward(time.Second)
	if n, err = s.Incr(ctx, "rate:x:sec", 2*time.Second); err != nil || n != 2 {
		t.Fatalf("Incr=(%d,%v)", n, err)
	}
	if ttl := mr.TTL("rate:x:sec"); ttl != time.Second {
		t.Fatalf("ttl=%v want 1s remaining", ttl)
	}

	mr.FastForward(time.Second)
	if n, err = s.Incr(ctx, "rate:x:sec", 2*time.Second); err != nil || n != 1 {
		t.Fatalf("counter should restart after expiry: (%d,%v)", n, err)
	}
}

func TestRedis_IncrByFloatAccumulates(t *testing.T) {
	s, mr := newMini(t)
	ctx := context.Background()

	if f, err := s.IncrByFloat(ctx, "cost:x", 0.5, time.Hour); err != nil || f != 0.5 {
		t.Fatalf("IncrByFloat=(%v,%v)", f, err)
	}
	if f, err := s.IncrByFloat(ctx, "cost:x", 1.25, time.Hour); err != nil || f != 1.75 {
		t.Fatalf("IncrByFloat=(%v,%v)", f, err)
	}
	if ttl := mr.TTL("cost:x"); ttl != time.Hour {
		t.Fatalf("ttl=%v; ExpireNX must not refresh on later writes", ttl)
	}
	if f, ok, err := s.GetFloat(ctx, "cost:x"); err != nil || !ok || f != 1.75 {
		t.Fatalf("GetFloat=(%v,%v,%v)", f, ok, err)
	}
}

func TestRedis_GetMissingIsNotAnError(t *testing.T) {
	s, _ := newMini(t)
	if _, ok, err := s.Get(context.Background(), "missing"); ok || err != nil {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.GetInt(context.Background(), "missing"); ok || err != nil {
		t.Fatalf("missing int: ok=%v err=%v", ok, err)
	}
}

func TestRedis_GetIntParseError(t *testing.T) {
	s, mr := newMini(t)
	mr.Set("weird", "not-a-number")
	if _, ok, err := s.GetInt(context.Background(), "weird"); err == nil || ok {
		t.Fatalf("expected parse error, got ok=%v err=%v", ok, err)
	}
}

func TestRedis_SetNXAndDelete(t *testing.T) {
	s, _ := newMini(t)
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "cb:x:opened_at", "123", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX=(%v,%v)", ok, err)
	}
	ok, err = s.SetNX(ctx, "cb:x:opened_at", "456", time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX should lose: (%v,%v)", ok, err)
	}
	if v, _, _ := s.Get(ctx, "cb:x:opened_at"); v != "123" {
		t.Fatalf("value overwritten: %q", v)
	}

	if err := s.Delete(ctx, "cb:x:opened_at", "absent"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "cb:x:opened_at"); ok {
		t.Fatalf("key survived delete")
	}
	// empty delete is a no-op
	if err := s.Delete(ctx); err != nil {
		t.Fatalf("Delete(): %v", err)
	}
}

func TestRedis_ContextCancellation(t *testing.T) {
	s, _ := newMini(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Incr(ctx, "k", time.Second); err == nil {
		t.Fatalf("expected error with canceled context")
	}
	if err := s.SetWithTTL(ctx, "k", "v", time.Second); err == nil {
		t.Fatalf("expected error with canceled context")
	}
}
