package statestore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemory_IncrCountsAndExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := s.Incr(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if n != want {
			t.Fatalf("Incr=%d want %d", n, want)
		}
	}

	now = now.Add(time.Minute)
	n, err := s.Incr(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if n != 1 {
		t.Fatalf("counter should restart after expiry, got %d", n)
	}
}

func TestMemory_IncrTTLSetOnFirstOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	if _, err := s.Incr(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	now = now.Add(30 * time.Second)
	if _, err := s.Incr(ctx, "k", time.Hour); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	// original 1m window still governs
	now = now.Add(31 * time.Second)
	if n, _ := s.Incr(ctx, "k", time.Minute); n != 1 {
		t.Fatalf("ttl should stick to the first increment; got %d", n)
	}
}

func TestMemory_IncrByFloat(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if f, err := s.IncrByFloat(ctx, "cost", 1.5, time.Hour); err != nil || f != 1.5 {
		t.Fatalf("IncrByFloat=(%v,%v)", f, err)
	}
	if f, err := s.IncrByFloat(ctx, "cost", 2.25, time.Hour); err != nil || f != 3.75 {
		t.Fatalf("IncrByFloat=(%v,%v)", f, err)
	}
	if f, ok, err := s.GetFloat(ctx, "cost"); err != nil || !ok || f != 3.75 {
		t.Fatalf("GetFloat=(%v,%v,%v)", f, ok, err)
	}
}

func TestMemory_SetGetDelete(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "k", "v", 0); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get=(%q,%v,%v)", v, ok, err)
	}
	if err := s.Delete(ctx, "k", "never-existed"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("key survived delete")
	}
}

func TestMemory_GetMissingIsNotAnError(t *testing.T) {
	s := NewMemory()
	if _, ok, err := s.Get(context.Background(), "missing"); ok || err != nil {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.GetInt(context.Background(), "missing"); ok || err != nil {
		t.Fatalf("missing int: ok=%v err=%v", ok, err)
	}
}

func TestMemory_SetNX(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "lock", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX=(%v,%v)", ok, err)
	}
	ok, err = s.SetNX(ctx, "lock", "b", time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX should lose: (%v,%v)", ok, err)
	}
	if v, _, _ := s.Get(ctx, "lock"); v != "a" {
		t.Fatalf("losing SetNX overwrote the value: %q", v)
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := s.SetNX(ctx, "lock", "c", time.Minute); !ok {
		t.Fatalf("SetNX should win after expiry")
	}
}

func TestMemory_ConcurrentIncr(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	const goroutines, perG = 16, 100
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				if _, err := s.Incr(ctx, "shared", time.Hour); err != nil {
					t.Errorf("Incr: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	n, ok, err := s.GetInt(ctx, "shared")
	if err != nil || !ok {
		t.Fatalf("GetInt: ok=%v err=%v", ok, err)
	}
	if n != goroutines*perG {
		t.Fatalf("count=%d want %d", n, goroutines*perG)
	}
}

func TestMemory_KeysSpreadAcrossShards(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		if err := s.SetWithTTL(ctx, fmt.Sprintf("key-%d", i), "v", 0); err != nil {
			t.Fatalf("SetWithTTL: %v", err)
		}
	}
	used := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		if len(s.shards[i].m) > 0 {
			used++
		}
		s.shards[i].mu.Unlock()
	}
	if used < numShards/2 {
		t.Fatalf("only %d/%d shards used; hashing is degenerate", used, numShards)
	}
}
