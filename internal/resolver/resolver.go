// Package resolver orchestrates the fallback chain: candidate narrowing,
// scoring, gated backend attempts and the final result with its trace.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openterrain/resolver/internal/core/config"
	"github.com/openterrain/resolver/internal/core/model"
	"github.com/openterrain/resolver/internal/core/observability"
	"github.com/openterrain/resolver/internal/index"
	"github.com/openterrain/resolver/internal/match"
	"github.com/openterrain/resolver/internal/resultcache"
	"github.com/openterrain/resolver/internal/scoring"
	"github.com/openterrain/resolver/internal/source"
)

// Backend couples a configured chain entry with its adapter.
type Backend struct {
	Entry   config.BackendEntry
	Adapter source.Adapter
}

type Resolver struct {
	logger   *slog.Logger
	idx      *index.Index
	scorer   *scoring.Scorer
	policy   *scoring.Policy
	backends []Backend
	cache    *resultcache.Cache

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds the orchestrator. backends must already be in priority order.
func New(logger *slog.Logger, idx *index.Index, scorer *scoring.Scorer, policy *scoring.Policy, backends []Backend, cache *resultcache.Cache) *Resolver {
	return &Resolver{
		logger:   logger,
		idx:      idx,
		scorer:   scorer,
		policy:   policy,
		backends: backends,
		cache:    cache,
		sleep:    sleepCtx,
	}
}

// WithSleeper injects the backoff sleeper, for tests.
func (r *Resolver) WithSleeper(sleep func(context.Context, time.Duration) error) *Resolver {
	r.sleep = sleep
	return r
}

// Resolve answers the elevation at a point, trying backends in priority
// order until one produces a value. Only *model.CoordinateError and
// *model.AllSourcesExhaustedError ever reach the caller; everything else is
// absorbed into the attempt trace.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64, preferred string) (model.ElevationResult, error) {
	if err := model.ValidateCoordinates(lat, lon); err != nil {
		return model.ElevationResult{}, err
	}

	if r.cache != nil && preferred == "" {
		if res, ok := r.cache.Get(lat, lon); ok {
			return res, nil
		}
	}

	pt := model.NewQueryPoint(lat, lon)
	st := &state{}

	for _, b := range r.orderedFor(preferred) {
		st.attempted = append(st.attempted, b.Entry.Name)
		var res *model.ElevationResult
		if cb, ok := b.Adapter.(source.CollectionBacked); ok {
			res = r.tryCollections(ctx, b, cb, pt, st)
		} else {
			res = r.tryDirect(ctx, b, pt, st)
		}
		if res != nil {
			res.AttemptedSources = st.attempted
			res.Attempts = st.attempts
			if r.cache != nil && preferred == "" {
				r.cache.Put(lat, lon, *res)
			}
			return *res, nil
		}
	}

	lastErr := st.lastErr
	if lastErr == nil {
		// Every backend answered but none had data at the point.
		lastErr = model.ErrNoCoverage
	}
	return model.ElevationResult{}, &model.AllSourcesExhaustedError{
		Lat:       lat,
		Lon:       lon,
		Attempted: st.attempted,
		LastErr:   lastErr,
		Retryable: st.lastRetryable,
		At:        time.Now(),
	}
}

// state accumulates the trace across one request.
type state struct {
	attempted     []string
	attempts      []model.Attempt
	lastErr       error
	lastRetryable bool
}

// orderedFor returns the backend chain, with the preferred backend (when
// set and known) moved to the front. The rest keep their configured order.
func (r *Resolver) orderedFor(preferred string) []Backend {
	if preferred == "" {
		return r.backends
	}
	out := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		if b.Entry.Name == preferred {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return r.backends
	}
	for _, b := range r.backends {
		if b.Entry.Name != preferred {
			out = append(out, b)
		}
	}
	return out
}

// tryCollections runs the narrowing pipeline for a storage backend: index
// candidates, score, confidence-prune, match files, then sample each
// candidate file in order.
func (r *Resolver) tryCollections(ctx context.Context, b Backend, cb source.CollectionBacked, pt *model.QueryPoint, st *state) *model.ElevationResult {
	candidates := r.idx.Candidates(pt.Lat, pt.Lon)
	if len(candidates) == 0 {
		st.attempts = append(st.attempts, model.Attempt{
			Backend: b.Entry.Name,
			Outcome: source.KindNoCoverage.String(),
		})
		return nil
	}

	scored := make([]model.ScoredCollection, len(candidates))
	for i, c := range candidates {
		scored[i] = r.scorer.Score(c, pt.Lat, pt.Lon)
	}
	selected := r.policy.Select(scored)

	scoreByID := make(map[string]float64, len(scored))
	for _, sc := range scored {
		scoreByID[sc.Collection.ID] = sc.TotalScore
	}

	for _, col := range selected {
		for _, f := range match.FilesFor(col, pt.Lat, pt.Lon) {
			outcome, giveUp := r.attempt(ctx, b, st, func(c context.Context) source.Outcome {
				return cb.SampleFile(c, col, f, pt)
			}, col.ID, f.Path)
			if outcome != nil {
				outcome.SourceID = col.ID
				outcome.Metadata["score"] = fmt.Sprintf("%.3f", scoreByID[col.ID])
				return outcome
			}
			if giveUp {
				// circuit open or quota spent: the whole backend is out
				return nil
			}
		}
	}
	return nil
}

func (r *Resolver) tryDirect(ctx context.Context, b Backend, pt *model.QueryPoint, st *state) *model.ElevationResult {
	outcome, _ := r.attempt(ctx, b, st, func(c context.Context) source.Outcome {
		return b.Adapter.GetElevation(c, pt)
	}, "", "")
	if outcome != nil {
		outcome.SourceID = b.Entry.Name
	}
	return outcome
}

// attempt invokes one candidate with bounded retries and exponential
// backoff. A non-nil result means success. giveUp signals that the rest of
// this backend's candidates should be skipped.
func (r *Resolver) attempt(ctx context.Context, b Backend, st *state, call func(context.Context) source.Outcome, collection, file string) (*model.ElevationResult, bool) {
	retryMax := b.Entry.RetryMax
	if retryMax < 0 {
		retryMax = 0
	}
	backoff := b.Entry.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	for try := 0; ; try++ {
		start := time.Now()
		out := call(ctx)
		dur := time.Since(start)
		observability.ObserveBackendAttempt(b.Entry.Name, out.Kind.String(), dur.Seconds())

		att := model.Attempt{
			Backend:    b.Entry.Name,
			Collection: collection,
			File:       file,
			Outcome:    out.Kind.String(),
			Duration:   dur,
		}
		if out.Err != nil {
			att.Error = out.Err.Error()
		}
		st.attempts = append(st.attempts, att)

		switch out.Kind {
		case source.KindValue:
			md := out.Metadata
			if md == nil {
				md = map[string]string{}
			}
			md["duration"] = dur.String()
			elev := out.Elevation
			return &model.ElevationResult{
				Elevation: &elev,
				Message:   "ok",
				Metadata:  md,
			}, false

		case source.KindNoCoverage:
			return nil, false

		case source.KindFailure:
			st.lastErr = out.Err
			st.lastRetryable = out.Retryable

			if errors.Is(out.Err, model.ErrCircuitOpen) {
				r.logger.Debug("backend skipped, circuit open", "backend", b.Entry.Name)
				return nil, true
			}
			var qe *model.QuotaExceededError
			if errors.As(out.Err, &qe) {
				r.logger.Warn("backend quota exhausted",
					"backend", b.Entry.Name, "kind", qe.Kind)
				return nil, true
			}
			if !out.Retryable || try >= retryMax {
				return nil, false
			}
			wait := backoff << uint(try)
			r.logger.Debug("retrying candidate",
				"backend", b.Entry.Name, "try", try+1, "backoff", wait.String())
			if err := r.sleep(ctx, wait); err != nil {
				st.lastErr = err
				return nil, false
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
