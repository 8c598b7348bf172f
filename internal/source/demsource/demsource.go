// Package demsource adapts object-storage raster collections to the backend
// contract.
package demsource

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/openterrain/resolver/internal/breaker"
	"github.com/openterrain/resolver/internal/core/model"
	"github.com/openterrain/resolver/internal/crs"
	"github.com/openterrain/resolver/internal/limiter"
	"github.com/openterrain/resolver/internal/raster"
	"github.com/openterrain/resolver/internal/source"
)

type Config struct {
	Name          string
	Timeout       time.Duration
	DailyBudgetGB float64
	Workers       int
	Queue         int
}

// Source samples elevation from raster files, gated by the circuit breaker
// and the daily egress budget. All raster I/O runs on the bounded worker
// pool.
type Source struct {
	cfg     Config
	sampler raster.Sampler
	crs     *crs.Transformer
	brk     *breaker.Breaker
	budget  *limiter.CostBudget
	pool    *workPool
	logger  *slog.Logger
}

var _ source.CollectionBacked = (*Source)(nil)

func New(cfg Config, sampler raster.Sampler, tr *crs.Transformer, brk *breaker.Breaker, budget *limiter.CostBudget, logger *slog.Logger) *Source {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Source{
		cfg:     cfg,
		sampler: sampler,
		crs:     tr,
		brk:     brk,
		budget:  budget,
		pool:    newWorkPool(cfg.Workers, cfg.Queue),
		logger:  logger,
	}
}

func (s *Source) Name() string { return s.cfg.Name }

// GetElevation exists to satisfy the adapter contract; the orchestrator
// narrows storage backends to (collection, file) candidates and calls
// SampleFile directly.
func (s *Source) GetElevation(context.Context, *model.QueryPoint) source.Outcome {
	return source.NoCoverage()
}

func (s *Source) SampleFile(ctx context.Context, col *model.Collection, f model.FileEntry, pt *model.QueryPoint) source.Outcome {
	available, err := s.brk.IsAvailable(ctx, s.cfg.Name)
	if err != nil {
		// breaker store trouble fails open; the backend itself may be fine
		s.logger.Warn("breaker check failed", "backend", s.cfg.Name, "err", err)
	}
	if !available {
		return source.Failure(model.ErrCircuitOpen, false)
	}

	if err := s.budget.Allow(ctx, s.cfg.Name, f.SizeBytes, s.cfg.DailyBudgetGB); err != nil {
		var qe *model.QuotaExceededError
		if errors.As(err, &qe) {
			return source.Failure(qe, false)
		}
		s.logger.Warn("budget check failed", "backend", s.cfg.Name, "err", err)
	}

	// project once per CRS per query point
	x, y, err := pt.Projected(f.NativeCRS, func(lat, lon float64) (float64, float64, error) {
		return s.crs.Project(lat, lon, f.NativeCRS)
	})
	if err != nil {
		// a bad projection is this collection's problem, not backend health
		return source.Failure(err, false)
	}

	// Breaker state must be recorded even when the sample context has
	// already expired, or a hanging store never trips the circuit.
	recordCtx := context.WithoutCancel(ctx)

	sampleCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var (
		value  float64
		ok     bool
		read   int64
		runErr error
	)
	poolErr := s.pool.run(sampleCtx, func() {
		h, err := s.sampler.Open(sampleCtx, f.Path)
		if err != nil {
			runErr = err
			return
		}
		defer s.sampler.Close(h)
		value, ok, runErr = h.Sample(x, y)
		read = h.BytesRead()
	})
	if poolErr != nil {
		// timeout waiting on the pool is a transient failure
		_ = s.brk.RecordFailure(recordCtx, s.cfg.Name)
		return source.Failure(&model.TransientBackendError{Backend: s.cfg.Name, Err: poolErr}, true)
	}
	if runErr != nil {
		_ = s.brk.RecordFailure(recordCtx, s.cfg.Name)
		return source.Failure(&model.TransientBackendError{Backend: s.cfg.Name, Err: runErr}, true)
	}
	if !ok {
		// NoData is absence of coverage, never a health signal
		return source.NoCoverage()
	}

	_ = s.brk.RecordSuccess(recordCtx, s.cfg.Name)
	if err := s.budget.Record(recordCtx, s.cfg.Name, read); err != nil {
		s.logger.Warn("budget record failed", "backend", s.cfg.Name, "err", err)
	}
	return source.Value(value, map[string]string{
		"collection":   col.ID,
		"file":         f.Path,
		"native_crs":   f.NativeCRS,
		"resolution_m": strconv.FormatFloat(f.ResolutionM, 'f', -1, 64),
	})
}
