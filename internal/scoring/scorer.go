// Package scoring ranks candidate collections for a query point and prunes
// the search set by confidence.
//
// The mechanism lives here; every constant it consumes (weights, step tables,
// regional boosts) comes from the configured tables.
package scoring

import (
	"github.com/openterrain/resolver/internal/core/config"
	"github.com/openterrain/resolver/internal/core/model"
)

type Scorer struct {
	tables  config.ScoringTables
	regions *RegionTable
}

func NewScorer(tables config.ScoringTables, regions *RegionTable) *Scorer {
	return &Scorer{tables: tables, regions: regions}
}

// Score computes the four sub-scores and the boosted weighted total for one
// collection at a point. The caller guarantees the point is inside the
// collection's coverage bounds.
func (s *Scorer) Score(c *model.Collection, lat, lon float64) model.ScoredCollection {
	sc := model.ScoredCollection{
		Collection:      c,
		ResolutionScore: s.resolutionScore(c.ResolutionM),
		TemporalScore:   s.temporalScore(c.SurveyYear),
		SpatialScore:    s.spatialScore(c.CoverageBounds, lat, lon),
		ProviderScore:   s.providerScore(c.Provider),
	}

	w := s.tables.Weights
	wsum := w.Resolution + w.Temporal + w.Spatial + w.Provider
	total := (w.Resolution*sc.ResolutionScore +
		w.Temporal*sc.TemporalScore +
		w.Spatial*sc.SpatialScore +
		w.Provider*sc.ProviderScore) / wsum

	// curated regional priority, independent of the weighted sum
	if s.regions != nil {
		total *= s.regions.Factor(lat, lon, c.SurveyYear)
	}
	sc.TotalScore = total
	return sc
}

// resolutionScore walks the step table in ascending ceiling order; the first
// ceiling at or above the resolution wins.
func (s *Scorer) resolutionScore(resolutionM float64) float64 {
	if resolutionM <= 0 {
		return s.tables.ResolutionFloor
	}
	for _, step := range s.tables.ResolutionSteps {
		if resolutionM <= step.Limit {
			return step.Score
		}
	}
	return s.tables.ResolutionFloor
}

// temporalScore rewards recency. An unknown year scores neutral, not
// penalized.
func (s *Scorer) temporalScore(year int) float64 {
	if year == 0 {
		return s.tables.TemporalUnknown
	}
	for _, step := range s.tables.TemporalSteps {
		if float64(year) >= step.Limit {
			return step.Score
		}
	}
	return s.tables.TemporalFloor
}

// spatialScore combines placement inside the coverage box with how
// geographically specific the collection is. Placement: 0.5 base for being
// inside, +0.3 when within the central 25% of the box, +0.2 when within the
// central 50%. Specificity comes from the area step table and is folded in
// as an equal partner.
func (s *Scorer) spatialScore(b model.GeoBounds, lat, lon float64) float64 {
	placement := 0.5
	switch {
	case withinCentral(b, lat, lon, 0.25):
		placement += 0.3
	case withinCentral(b, lat, lon, 0.50):
		placement += 0.2
	}
	return (placement + s.specificity(b)) / 2
}

func (s *Scorer) specificity(b model.GeoBounds) float64 {
	area := b.AreaDeg2()
	for _, step := range s.tables.SpecificitySteps {
		if area <= step.Limit {
			return step.Score
		}
	}
	return s.tables.SpecificityFloor
}

// withinCentral reports whether the point lies inside the box shrunk to
// fraction of each dimension around its center.
func withinCentral(b model.GeoBounds, lat, lon, fraction float64) bool {
	halfLat := (b.MaxLat - b.MinLat) * fraction / 2
	halfLon := (b.MaxLon - b.MinLon) * fraction / 2
	cLat := (b.MinLat + b.MaxLat) / 2
	cLon := (b.MinLon + b.MaxLon) / 2
	return lat >= cLat-halfLat && lat <= cLat+halfLat &&
		lon >= cLon-halfLon && lon <= cLon+halfLon
}

func (s *Scorer) providerScore(provider string) float64 {
	if v, ok := s.tables.ProviderScores[provider]; ok {
		return v
	}
	return s.tables.ProviderDefault
}
