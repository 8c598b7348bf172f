// Package index holds the in-memory spatial index of elevation collections.
//
// The index is an immutable snapshot swapped atomically on refresh: requests
// in flight keep reading the old snapshot until the new one is fully built.
package index

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/openterrain/resolver/internal/core/model"
	"github.com/openterrain/resolver/internal/core/observability"
)

type Snapshot struct {
	collections []*model.Collection
	tree        *bboxTree // nil when acceleration is off
	loadedAt    time.Time
}

// Index answers point-in-coverage candidate queries. A zero Index is empty
// until the first Swap.
type Index struct {
	snap        atomic.Pointer[Snapshot]
	accelerated bool
}

// New creates an index. With accelerated set, Candidates uses a bounding-box
// tree instead of a linear scan; both modes return identical candidate sets.
func New(accelerated bool) *Index {
	idx := &Index{accelerated: accelerated}
	idx.snap.Store(&Snapshot{})
	return idx
}

// Swap validates and installs a freshly loaded set of collections. The old
// snapshot stays active until the new one is complete.
func (i *Index) Swap(cols []model.Collection, loadedAt time.Time) error {
	snap := &Snapshot{
		collections: make([]*model.Collection, 0, len(cols)),
		loadedAt:    loadedAt,
	}
	seen := make(map[string]bool, len(cols))
	for idx := range cols {
		c := &cols[idx]
		if c.ID == "" {
			return fmt.Errorf("collection %d: empty id", idx)
		}
		if seen[c.ID] {
			return fmt.Errorf("collection %q: duplicate id", c.ID)
		}
		seen[c.ID] = true
		if !c.CoverageBounds.Valid() {
			return fmt.Errorf("collection %q: invalid coverage bounds %s", c.ID, c.CoverageBounds)
		}
		for fi := range c.Files {
			if !c.Files[fi].Bounds.Valid() {
				return fmt.Errorf("collection %q file %q: invalid bounds", c.ID, c.Files[fi].Path)
			}
		}
		snap.collections = append(snap.collections, c)
	}
	if i.accelerated {
		snap.tree = buildTree(snap.collections)
	}
	i.snap.Store(snap)
	observability.SetIndexStats(len(snap.collections), loadedAt.Unix())
	return nil
}

// Candidates returns every collection whose universal coverage bounds
// contain the point, in manifest order.
func (i *Index) Candidates(lat, lon float64) []*model.Collection {
	snap := i.snap.Load()
	if snap.tree != nil {
		return snap.tree.search(lat, lon)
	}
	var out []*model.Collection
	for _, c := range snap.collections {
		if c.CoverageBounds.Contains(lat, lon) {
			out = append(out, c)
		}
	}
	return out
}

// Collections returns the full active set, for health reporting.
func (i *Index) Collections() []*model.Collection {
	return i.snap.Load().collections
}

// Stats reports index freshness.
func (i *Index) Stats() (collections int, loadedAt time.Time) {
	snap := i.snap.Load()
	return len(snap.collections), snap.loadedAt
}
