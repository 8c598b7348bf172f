// Package refresh keeps the spatial index current: a cron schedule reloads
// the manifest periodically, and an optional Kafka consumer reloads it when
// collection-update events arrive. Both paths funnel into the same atomic
// snapshot swap.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openterrain/resolver/internal/core/model"
	"github.com/openterrain/resolver/internal/index"
)

// ManifestLoader is the loader boundary consumed here.
type ManifestLoader interface {
	Load(ctx context.Context, source string) ([]model.Collection, error)
}

type Refresher struct {
	logger *slog.Logger
	loader ManifestLoader
	idx    *index.Index
	source string

	mu   sync.Mutex // one reload at a time; the swap itself is atomic
	cron *cron.Cron
}

func New(logger *slog.Logger, loader ManifestLoader, idx *index.Index, source string) *Refresher {
	return &Refresher{logger: logger, loader: loader, idx: idx, source: source}
}

// Reload loads the manifest and swaps the index. Requests in flight keep the
// old snapshot until the swap completes.
func (r *Refresher) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	cols, err := r.loader.Load(ctx, r.source)
	if err != nil {
		return fmt.Errorf("reload index: %w", err)
	}
	if err := r.idx.Swap(cols, time.Now()); err != nil {
		return fmt.Errorf("swap index: %w", err)
	}
	r.logger.Info("index reloaded",
		"collections", len(cols),
		"source", r.source,
		"duration", time.Since(start).String())
	return nil
}

// Start registers the cron schedule and begins periodic reloads. The
// schedule uses cron syntax or @every intervals.
func (r *Refresher) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		reloadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := r.Reload(reloadCtx); err != nil {
			r.logger.Error("scheduled index reload failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron schedule %q: %w", schedule, err)
	}
	c.Start()
	r.cron = c

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
