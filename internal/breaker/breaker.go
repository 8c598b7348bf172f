// Package breaker implements the per-backend circuit breaker on the shared
// state store.
//
// State lives entirely in the store, so every service instance sees the same
// failure counts and open markers. The OPEN -> CLOSED transition is lazy:
// it is evaluated on the next availability check, there is no background
// timer. Every key carries a TTL slightly longer than the recovery timeout,
// so stale state self-expires even without explicit resets.
package breaker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/openterrain/resolver/internal/core/observability"
	"github.com/openterrain/resolver/internal/statestore"
)

// Settings are the per-backend breaker parameters.
type Settings struct {
	Threshold       int
	RecoveryTimeout time.Duration
}

// State is a read-only snapshot for health reporting.
type State struct {
	Backend      string        `json:"backend"`
	FailureCount int64         `json:"failure_count"`
	Open         bool          `json:"open"`
	OpenedAt     *time.Time    `json:"opened_at,omitempty"`
	RecoveryIn   time.Duration `json:"recovery_in,omitempty"`
}

type Breaker struct {
	store    statestore.Store
	settings map[string]Settings
	fallback Settings
	now      func() time.Time
}

func New(store statestore.Store, settings map[string]Settings) *Breaker {
	return &Breaker{
		store:    store,
		settings: settings,
		fallback: Settings{Threshold: 5, RecoveryTimeout: time.Minute},
		now:      time.Now,
	}
}

// WithClock injects a clock, for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

func (b *Breaker) settingsFor(name string) Settings {
	if s, ok := b.settings[name]; ok && s.Threshold > 0 && s.RecoveryTimeout > 0 {
		return s
	}
	return b.fallback
}

func failuresKey(name string) string { return "cb:" + name + ":failures" }
func openedKey(name string) string   { return "cb:" + name + ":opened_at" }

// ttl keeps breaker state alive just past the recovery window
func (b *Breaker) ttl(s Settings) time.Duration {
	return s.RecoveryTimeout + 30*time.Second
}

// IsAvailable reports whether the backend may be called. When the recovery
// timeout has elapsed since the circuit opened, the open marker is cleared
// here and the backend is available again without any explicit reset.
//
// Store errors are returned alongside availability; callers are expected to
// fail open (the store being down must not take every backend with it).
func (b *Breaker) IsAvailable(ctx context.Context, name string) (bool, error) {
	raw, ok, err := b.store.Get(ctx, openedKey(name))
	if err != nil {
		return true, fmt.Errorf("breaker read %q: %w", name, err)
	}
	if !ok {
		observability.SetCircuitOpen(name, false)
		return true, nil
	}

	openedNanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// unreadable stamp: clear it rather than wedge the backend shut
		_ = b.store.Delete(ctx, openedKey(name), failuresKey(name))
		return true, fmt.Errorf("breaker stamp %q: %w", name, err)
	}

	s := b.settingsFor(name)
	elapsed := b.now().Sub(time.Unix(0, openedNanos))
	if elapsed >= s.RecoveryTimeout {
		if err := b.store.Delete(ctx, openedKey(name), failuresKey(name)); err != nil {
			return true, fmt.Errorf("breaker recover %q: %w", name, err)
		}
		observability.SetCircuitOpen(name, false)
		return true, nil
	}
	observability.SetCircuitOpen(name, true)
	return false, nil
}

// RecordSuccess clears the failure count and open marker.
func (b *Breaker) RecordSuccess(ctx context.Context, name string) error {
	if err := b.store.Delete(ctx, failuresKey(name), openedKey(name)); err != nil {
		return fmt.Errorf("breaker clear %q: %w", name, err)
	}
	observability.SetCircuitOpen(name, false)
	return nil
}

// RecordFailure increments the shared failure count; crossing the threshold
// stamps the opened-at marker. SetNX keeps the first stamp: concurrent
// failures across instances must not keep pushing recovery into the future.
func (b *Breaker) RecordFailure(ctx context.Context, name string) error {
	s := b.settingsFor(name)
	count, err := b.store.Incr(ctx, failuresKey(name), b.ttl(s))
	if err != nil {
		return fmt.Errorf("breaker count %q: %w", name, err)
	}
	if count >= int64(s.Threshold) {
		stamp := strconv.FormatInt(b.now().UnixNano(), 10)
		if _, err := b.store.SetNX(ctx, openedKey(name), stamp, b.ttl(s)); err != nil {
			return fmt.Errorf("breaker open %q: %w", name, err)
		}
		observability.SetCircuitOpen(name, true)
	}
	return nil
}

// Reset is the administrative override: it force-closes the circuit.
func (b *Breaker) Reset(ctx context.Context, name string) error {
	return b.RecordSuccess(ctx, name)
}

// Snapshot reads the current state for one backend.
func (b *Breaker) Snapshot(ctx context.Context, name string) (State, error) {
	st := State{Backend: name}

	count, _, err := b.store.GetInt(ctx, failuresKey(name))
	if err != nil {
		return st, fmt.Errorf("breaker snapshot %q: %w", name, err)
	}
	st.FailureCount = count

	raw, ok, err := b.store.Get(ctx, openedKey(name))
	if err != nil {
		return st, fmt.Errorf("breaker snapshot %q: %w", name, err)
	}
	if !ok {
		return st, nil
	}
	openedNanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return st, nil
	}
	opened := time.Unix(0, openedNanos)
	s := b.settingsFor(name)
	remaining := s.RecoveryTimeout - b.now().Sub(opened)
	if remaining > 0 {
		st.Open = true
		st.OpenedAt = &opened
		st.RecoveryIn = remaining
	}
	return st, nil
}
