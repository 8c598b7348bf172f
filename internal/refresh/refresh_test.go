package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/openterrain/resolver/internal/core/model"
	"github.com/openterrain/resolver/internal/index"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLoader struct {
	mu    sync.Mutex
	cols  []model.Collection
	err   error
	loads int
}

func (f *fakeLoader) Load(context.Context, string) ([]model.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.cols, f.err
}

func (f *fakeLoader) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func cols(ids ...string) []model.Collection {
	out := make([]model.Collection, len(ids))
	for i, id := range ids {
		out[i] = model.Collection{
			ID:             id,
			CoverageBounds: model.GeoBounds{MinLat: -29, MaxLat: -26, MinLon: 152, MaxLon: 154},
		}
	}
	return out
}

func TestReload_SwapsTheIndex(t *testing.T) {
	idx := index.New(false)
	ld := &fakeLoader{cols: cols("a", "b")}
	r := New(discard(), ld, idx, "collections.json")

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if n, _ := idx.Stats(); n != 2 {
		t.Fatalf("collections=%d", n)
	}

	ld.cols = cols("a", "b", "c")
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if n, _ := idx.Stats(); n != 3 {
		t.Fatalf("collections=%d after second reload", n)
	}
}

func TestReload_LoaderFailureKeepsOldIndex(t *testing.T) {
	idx := index.New(false)
	ld := &fakeLoader{cols: cols("a")}
	r := New(discard(), ld, idx, "collections.json")

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	ld.err = errors.New("object storage down")
	if err := r.Reload(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if n, _ := idx.Stats(); n != 1 {
		t.Fatalf("failed reload must keep the old snapshot, got %d", n)
	}
}

func TestReload_BadManifestKeepsOldIndex(t *testing.T) {
	idx := index.New(false)
	ld := &fakeLoader{cols: cols("a")}
	r := New(discard(), ld, idx, "collections.json")

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	ld.cols = cols("dup", "dup")
	if err := r.Reload(context.Background()); err == nil {
		t.Fatalf("duplicate ids must fail the swap")
	}
	if n, _ := idx.Stats(); n != 1 {
		t.Fatalf("rejected swap must keep the old snapshot, got %d", n)
	}
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	r := New(discard(), &fakeLoader{}, index.New(false), "collections.json")
	if err := r.Start(context.Background(), "not a schedule"); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}

func TestStart_RunsOnSchedule(t *testing.T) {
	idx := index.New(false)
	ld := &fakeLoader{cols: cols("a")}
	r := New(discard(), ld, idx, "collections.json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx, "@every 100ms"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for ld.loadCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("no scheduled reload within deadline")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
