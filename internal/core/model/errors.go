package model

import (
	"errors"
	"fmt"
	"time"
)

// CoordinateError is fatal to the request and never retried.
type CoordinateError struct {
	Lat    float64
	Lon    float64
	Reason string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinates (%.6f, %.6f): %s", e.Lat, e.Lon, e.Reason)
}

// CRSTransformationError is fatal for the collection that needed the
// projection, not for the request.
type CRSTransformationError struct {
	CRS    string
	Reason string
}

func (e *CRSTransformationError) Error() string {
	return fmt.Sprintf("crs %q: %s", e.CRS, e.Reason)
}

// Sentinel errors for backend gating. These are expected control-flow
// outcomes inside the fallback loop, never surfaced raw to callers.
var (
	// ErrNoCoverage means a backend has no data at the point. Not a
	// failure, and never counted against backend health.
	ErrNoCoverage = errors.New("no coverage at point")

	// ErrCircuitOpen means the backend was skipped without a call because
	// its circuit breaker is open. Retryable on a later request.
	ErrCircuitOpen = errors.New("circuit open")
)

// QuotaExceededError means a daily request or cost ceiling is exhausted.
// Non-retryable for the remainder of the window.
type QuotaExceededError struct {
	Backend string
	Kind    string // "daily_requests" or "cost_budget"
	Limit   float64
	Used    float64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("backend %s: %s quota exceeded (%.2f/%.2f)", e.Backend, e.Kind, e.Used, e.Limit)
}

// TransientBackendError wraps a timeout or 5xx-equivalent failure. Retryable
// with backoff up to the configured bound.
type TransientBackendError struct {
	Backend string
	Err     error
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("backend %s: transient: %v", e.Backend, e.Err)
}

func (e *TransientBackendError) Unwrap() error { return e.Err }

// AllSourcesExhaustedError is the terminal failure: every backend was tried
// without producing a value. Carries the full attempt trace.
type AllSourcesExhaustedError struct {
	Lat       float64
	Lon       float64
	Attempted []string
	LastErr   error
	Retryable bool
	At        time.Time
}

func (e *AllSourcesExhaustedError) Error() string {
	return fmt.Sprintf("no elevation for (%.6f, %.6f) after trying %v (last error: %v)",
		e.Lat, e.Lon, e.Attempted, e.LastErr)
}

func (e *AllSourcesExhaustedError) Unwrap() error { return e.LastErr }

// Retryable classifies an error for the fallback loop: true means the same
// candidate may be retried with backoff.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientBackendError
	if errors.As(err, &te) {
		return true
	}
	return false
}
