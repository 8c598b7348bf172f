package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openterrain/resolver/internal/breaker"
	"github.com/openterrain/resolver/internal/core/model"
	"github.com/openterrain/resolver/internal/limiter"
)

// Ops exposes the operational surface: health reporting, the administrative
// circuit reset and batch resolution.
type Ops struct {
	*Resolver
	brk  *breaker.Breaker
	rate *limiter.RateLimiter
	cost *limiter.CostBudget
}

func NewOps(r *Resolver, brk *breaker.Breaker, rate *limiter.RateLimiter, cost *limiter.CostBudget) *Ops {
	return &Ops{Resolver: r, brk: brk, rate: rate, cost: cost}
}

type BackendHealth struct {
	Name         string        `json:"name"`
	Kind         string        `json:"kind"`
	Circuit      breaker.State `json:"circuit"`
	DayRequests  int64         `json:"day_requests,omitempty"`
	DayCostBytes float64       `json:"day_cost_bytes,omitempty"`
}

type Health struct {
	Backends         []BackendHealth `json:"backends"`
	IndexCollections int             `json:"index_collections"`
	IndexLoadedAt    time.Time       `json:"index_loaded_at"`
}

// Health assembles per-backend circuit state, usage counters and index
// freshness for the monitoring endpoint.
func (o *Ops) Health(ctx context.Context) Health {
	h := Health{}
	h.IndexCollections, h.IndexLoadedAt = o.idx.Stats()

	for _, b := range o.backends {
		bh := BackendHealth{Name: b.Entry.Name, Kind: b.Entry.Kind}
		if st, err := o.brk.Snapshot(ctx, b.Entry.Name); err == nil {
			bh.Circuit = st
		} else {
			o.logger.Warn("health: breaker snapshot failed", "backend", b.Entry.Name, "err", err)
		}
		switch b.Entry.Kind {
		case "api":
			if n, err := o.rate.DayUsage(ctx, b.Entry.Name); err == nil {
				bh.DayRequests = n
			}
		case "dem":
			if used, err := o.cost.DayUsage(ctx, b.Entry.Name); err == nil {
				bh.DayCostBytes = used
			}
		}
		h.Backends = append(h.Backends, bh)
	}
	return h
}

// ResetCircuit force-closes one backend's circuit. Unknown backends are an
// error so operators notice typos.
func (o *Ops) ResetCircuit(ctx context.Context, name string) error {
	for _, b := range o.backends {
		if b.Entry.Name == name {
			return o.brk.Reset(ctx, name)
		}
	}
	return fmt.Errorf("unknown backend %q", name)
}

// Point is one batch input.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BatchResult pairs an input point with its resolution.
type BatchResult struct {
	Point  Point                  `json:"point"`
	Result *model.ElevationResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// ResolveBatch resolves many independent points concurrently with bounded
// parallelism. Output order matches input order; there is no cross-point
// ordering guarantee during execution.
func (o *Ops) ResolveBatch(ctx context.Context, points []Point, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = 8
	}
	out := make([]BatchResult, len(points))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, p := range points {
		wg.Add(1)
		go func(i int, p Point) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := o.Resolve(ctx, p.Lat, p.Lon, "")
			br := BatchResult{Point: p}
			if err != nil {
				br.Error = err.Error()
			} else {
				br.Result = &res
			}
			out[i] = br
		}(i, p)
	}
	wg.Wait()
	return out
}
