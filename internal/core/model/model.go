// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// GeoBounds is a geographic bounding box in WGS84 degrees. It is the one
// universal format used for every cross-collection comparison; projected
// bounds never leave per-file metadata.
type GeoBounds struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

func (b GeoBounds) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}

// Contains reports whether the point lies inside the box, boundary inclusive.
func (b GeoBounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// AreaDeg2 is the box area in square degrees, used by the specificity score.
func (b GeoBounds) AreaDeg2() float64 {
	return (b.MaxLat - b.MinLat) * (b.MaxLon - b.MinLon)
}

func (b GeoBounds) String() string {
	return fmt.Sprintf("[%.6f,%.6f,%.6f,%.6f]", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// FileEntry is one physical data file inside a collection. Immutable once
// indexed.
type FileEntry struct {
	Path         string    `json:"path"`
	Bounds       GeoBounds `json:"bounds"`
	SizeBytes    int64     `json:"size_bytes"`
	ResolutionM  float64   `json:"resolution_m"`
	NativeCRS    string    `json:"native_crs"`
	LastModified time.Time `json:"last_modified"`
}

// FileOrder declares how a collection prefers its matching files tried.
type FileOrder string

const (
	// OrderBySize tries smaller (more spatially specific) files first.
	OrderBySize FileOrder = "size"
	// OrderByRecency tries the most recently modified files first.
	OrderByRecency FileOrder = "recency"
)

// Collection is a named survey campaign: a set of elevation files sharing
// provider, year, resolution and native CRS. Collections are built at index
// load time and read-only afterwards; a refresh replaces them wholesale.
type Collection struct {
	ID             string      `json:"id"`
	Country        string      `json:"country"`
	NativeCRS      string      `json:"native_crs"`
	CoverageBounds GeoBounds   `json:"coverage_bounds"`
	Files          []FileEntry `json:"files"`
	ResolutionM    float64     `json:"resolution_m"`
	Provider       string      `json:"provider"`
	SurveyYear     int         `json:"survey_year"` // 0 when unknown
	PriorityHint   int         `json:"priority_hint"`
	PreferredOrder FileOrder   `json:"preferred_order,omitempty"`
}

// QueryPoint is a query-scoped point that lazily caches its projection per
// target CRS, so checking the point against many collections sharing a CRS
// reprojects only once.
type QueryPoint struct {
	Lat float64
	Lon float64

	mu        sync.Mutex
	projected map[string][2]float64
}

func NewQueryPoint(lat, lon float64) *QueryPoint {
	return &QueryPoint{Lat: lat, Lon: lon}
}

// Projected returns the cached (x, y) for crs, computing it with fn on the
// first call. x is the longitude-derived easting, y the latitude-derived
// northing.
func (p *QueryPoint) Projected(crs string, fn func(lat, lon float64) (x, y float64, err error)) (x, y float64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if xy, ok := p.projected[crs]; ok {
		return xy[0], xy[1], nil
	}
	x, y, err = fn(p.Lat, p.Lon)
	if err != nil {
		return 0, 0, err
	}
	if p.projected == nil {
		p.projected = make(map[string][2]float64, 4)
	}
	p.projected[crs] = [2]float64{x, y}
	return x, y, nil
}

// ScoredCollection is a per-query, ephemeral scoring result. Never persisted.
type ScoredCollection struct {
	Collection *Collection

	ResolutionScore float64
	TemporalScore   float64
	SpatialScore    float64
	ProviderScore   float64

	// TotalScore is the weighted sum of the sub-scores multiplied by the
	// regional priority factor.
	TotalScore float64
}

// Attempt records one candidate tried during resolution, for the trace.
type Attempt struct {
	Backend    string        `json:"backend"`
	Collection string        `json:"collection,omitempty"`
	File       string        `json:"file,omitempty"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// ElevationResult is the single value returned to callers. Created fresh per
// request and never mutated after return.
type ElevationResult struct {
	Elevation        *float64          `json:"elevation"`
	SourceID         string            `json:"source_id,omitempty"`
	Message          string            `json:"message,omitempty"`
	AttemptedSources []string          `json:"attempted_sources"`
	Attempts         []Attempt         `json:"attempts,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// ValidateCoordinates rejects points outside the WGS84 domain. NaN and
// infinities fail every range comparison the wrong way round, so they are
// rejected explicitly.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return &CoordinateError{Lat: lat, Lon: lon, Reason: "latitude must be a finite number"}
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return &CoordinateError{Lat: lat, Lon: lon, Reason: "longitude must be a finite number"}
	}
	if lat < -90 || lat > 90 {
		return &CoordinateError{Lat: lat, Lon: lon, Reason: "latitude must be in [-90,90]"}
	}
	if lon < -180 || lon > 180 {
		return &CoordinateError{Lat: lat, Lon: lon, Reason: "longitude must be in [-180,180]"}
	}
	return nil
}
