package scoring

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"

	"github.com/openterrain/resolver/internal/core/config"
)

// RegionTable holds curated priority multipliers for high-traffic areas.
// Areas are configured as H3 cells, so membership for a point is a single
// cell computation and a map lookup per configured resolution.
type RegionTable struct {
	byRes map[int]map[h3.Cell]boost
}

type boost struct {
	factor        float64
	minYear       int
	recencyFactor float64
}

// NewRegionTable compiles the configured boost areas. Unknown cell strings
// are rejected rather than ignored so a typo in the table surfaces at
// startup.
func NewRegionTable(entries []config.RegionBoost) (*RegionTable, error) {
	t := &RegionTable{byRes: make(map[int]map[h3.Cell]boost)}
	for _, e := range entries {
		if e.Resolution < 0 || e.Resolution > 15 {
			return nil, fmt.Errorf("region %q: invalid h3 resolution %d", e.Name, e.Resolution)
		}
		if e.Factor <= 0 {
			return nil, fmt.Errorf("region %q: factor must be positive", e.Name)
		}
		cells := t.byRes[e.Resolution]
		if cells == nil {
			cells = make(map[h3.Cell]boost)
			t.byRes[e.Resolution] = cells
		}
		for _, s := range e.Cells {
			idx := h3.IndexFromString(s)
			c := h3.Cell(idx)
			if !c.IsValid() {
				return nil, fmt.Errorf("region %q: invalid h3 cell %q", e.Name, s)
			}
			if c.Resolution() != e.Resolution {
				return nil, fmt.Errorf("region %q: cell %q is resolution %d, table says %d",
					e.Name, s, c.Resolution(), e.Resolution)
			}
			cells[c] = boost{factor: e.Factor, minYear: e.MinYear, recencyFactor: e.RecencyFactor}
		}
	}
	return t, nil
}

// Factor returns the multiplier for a point, 1.0 when no boosted area covers
// it. Within a boosted area, surveys at or after the area's min year get the
// recency factor on top.
func (t *RegionTable) Factor(lat, lon float64, surveyYear int) float64 {
	if t == nil || len(t.byRes) == 0 {
		return 1.0
	}
	factor := 1.0
	for res, cells := range t.byRes {
		cell, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
		if err != nil {
			continue
		}
		b, ok := cells[cell]
		if !ok {
			continue
		}
		f := b.factor
		if b.minYear > 0 && b.recencyFactor > 0 && surveyYear >= b.minYear {
			f *= b.recencyFactor
		}
		if f > factor {
			factor = f
		}
	}
	return factor
}
