// Package limiter enforces request-rate quotas for paid APIs and the daily
// egress budget for object-storage reads, on the shared state store.
//
// Both mechanisms are atomic counters whose keys embed the current window
// (second or UTC day), so concurrent instances share one count. The TTL on a
// counter only garbage-collects it shortly after its window ends.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/openterrain/resolver/internal/core/model"
	"github.com/openterrain/resolver/internal/core/observability"
	"github.com/openterrain/resolver/internal/statestore"
)

const (
	secondTTL = 2 * time.Second
	dayTTL    = 25 * time.Hour

	bytesPerGB = 1 << 30
)

// Limits are the per-backend request ceilings. Zero disables a ceiling.
type Limits struct {
	PerSecond int
	PerDay    int
}

// RateLimiter admits or delays requests. Exceeding the per-second ceiling
// waits for the next second; exceeding the daily ceiling is a non-retryable
// quota error for the rest of the day.
type RateLimiter struct {
	store statestore.Store
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRateLimiter(store statestore.Store) *RateLimiter {
	return &RateLimiter{store: store, now: time.Now, sleep: sleepCtx}
}

// WithClock injects a clock and sleeper, for tests.
func (l *RateLimiter) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *RateLimiter {
	l.now = now
	l.sleep = sleep
	return l
}

func dayKey(backend string, t time.Time) string {
	return "rate:" + backend + ":day:" + t.UTC().Format("20060102")
}

func secondKey(backend string, t time.Time) string {
	return "rate:" + backend + ":sec:" + t.UTC().Format("20060102T150405")
}

// Acquire blocks until the request is admitted, or fails with
// *model.QuotaExceededError when the daily ceiling is exhausted.
func (l *RateLimiter) Acquire(ctx context.Context, backend string, lim Limits) error {
	if lim.PerDay > 0 {
		n, err := l.store.Incr(ctx, dayKey(backend, l.now()), dayTTL)
		if err != nil {
			return fmt.Errorf("rate day count %q: %w", backend, err)
		}
		observability.SetQuotaUsage(backend, "day", float64(n))
		if n > int64(lim.PerDay) {
			return &model.QuotaExceededError{
				Backend: backend,
				Kind:    "daily_requests",
				Limit:   float64(lim.PerDay),
				Used:    float64(n),
			}
		}
	}

	if lim.PerSecond <= 0 {
		return nil
	}
	for {
		now := l.now()
		n, err := l.store.Incr(ctx, secondKey(backend, now), secondTTL)
		if err != nil {
			return fmt.Errorf("rate second count %q: %w", backend, err)
		}
		if n <= int64(lim.PerSecond) {
			return nil
		}
		// bucket full: wait out the rest of this second and try the next one
		wait := time.Second - time.Duration(now.Nanosecond())
		if wait <= 0 {
			wait = time.Millisecond
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// DayUsage reports today's request count, for health.
func (l *RateLimiter) DayUsage(ctx context.Context, backend string) (int64, error) {
	n, _, err := l.store.GetInt(ctx, dayKey(backend, l.now()))
	if err != nil {
		return 0, fmt.Errorf("rate usage %q: %w", backend, err)
	}
	return n, nil
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

// CostBudget tracks a per-day byte accumulator against a gigabyte budget.
// Allow checks an estimate without consuming anything; Record charges the
// bytes actually transferred after a successful read.
type CostBudget struct {
	store statestore.Store
	now   func() time.Time
}

func NewCostBudget(store statestore.Store) *CostBudget {
	return &CostBudget{store: store, now: time.Now}
}

func (c *CostBudget) WithClock(now func() time.Time) *CostBudget {
	c.now = now
	return c
}

func costKey(backend string, t time.Time) string {
	return "cost:" + backend + ":day:" + t.UTC().Format("20060102")
}

// Allow fails with *model.QuotaExceededError when current + estimate would
// cross the daily budget. Skipped attempts consume nothing.
func (c *CostBudget) Allow(ctx context.Context, backend string, estimateBytes int64, budgetGB float64) error {
	if budgetGB <= 0 {
		return nil
	}
	used, _, err := c.store.GetFloat(ctx, costKey(backend, c.now()))
	if err != nil {
		return fmt.Errorf("cost read %q: %w", backend, err)
	}
	budgetBytes := budgetGB * bytesPerGB
	if used+float64(estimateBytes) > budgetBytes {
		return &model.QuotaExceededError{
			Backend: backend,
			Kind:    "cost_budget",
			Limit:   budgetGB,
			Used:    used / bytesPerGB,
		}
	}
	return nil
}

// Record charges the actual bytes consumed by a successful read.
func (c *CostBudget) Record(ctx context.Context, backend string, actualBytes int64) error {
	if actualBytes <= 0 {
		return nil
	}
	total, err := c.store.IncrByFloat(ctx, costKey(backend, c.now()), float64(actualBytes), dayTTL)
	if err != nil {
		return fmt.Errorf("cost record %q: %w", backend, err)
	}
	observability.SetQuotaUsage(backend, "cost_bytes", total)
	return nil
}

// DayUsage reports today's byte total, for health.
func (c *CostBudget) DayUsage(ctx context.Context, backend string) (float64, error) {
	used, _, err := c.store.GetFloat(ctx, costKey(backend, c.now()))
	if err != nil {
		return 0, fmt.Errorf("cost usage %q: %w", backend, err)
	}
	return used, nil
}
