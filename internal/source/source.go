// Package source defines the uniform backend adapter contract shared by
// every physical elevation backend.
package source

import (
	"context"

	"github.com/openterrain/resolver/internal/core/model"
)

// Kind tags an outcome.
type Kind int

const (
	// KindValue carries a usable elevation.
	KindValue Kind = iota
	// KindNoCoverage means the backend answered and has no data at the
	// point. Expected, silent continuation; never a health signal.
	KindNoCoverage
	// KindFailure carries an error; Retryable distinguishes transient
	// failures from definitive ones.
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindNoCoverage:
		return "no_coverage"
	default:
		return "failure"
	}
}

// Outcome is the single result type of one backend attempt.
type Outcome struct {
	Kind      Kind
	Elevation float64
	Metadata  map[string]string
	Err       error
	Retryable bool
}

func Value(elev float64, md map[string]string) Outcome {
	return Outcome{Kind: KindValue, Elevation: elev, Metadata: md}
}

func NoCoverage() Outcome {
	return Outcome{Kind: KindNoCoverage}
}

func Failure(err error, retryable bool) Outcome {
	return Outcome{Kind: KindFailure, Err: err, Retryable: retryable}
}

// Adapter is the closed contract every backend implements. Adapters gate
// themselves: they consult their circuit breaker and limiter before any
// network or storage call.
type Adapter interface {
	Name() string
	GetElevation(ctx context.Context, pt *model.QueryPoint) Outcome
}

// CollectionBacked is the storage-backed variant: the orchestrator narrows
// to (collection, file) candidates first and samples them one by one.
type CollectionBacked interface {
	Adapter
	SampleFile(ctx context.Context, col *model.Collection, f model.FileEntry, pt *model.QueryPoint) Outcome
}
