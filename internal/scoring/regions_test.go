package scoring

import (
	"testing"

	h3 "github.com/uber/h3-go/v4"

	"github.com/openterrain/resolver/internal/core/config"
)

// cellFor computes the H3 cell string covering a point so the tests never
// hardcode index values.
func cellFor(t *testing.T, lat, lon float64, res int) string {
	t.Helper()
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	return cell.String()
}

func TestFactor_NoRegionsIsNeutral(t *testing.T) {
	tbl, err := NewRegionTable(nil)
	if err != nil {
		t.Fatalf("NewRegionTable: %v", err)
	}
	if got := tbl.Factor(-27.5, 153.0, 2021); got != 1.0 {
		t.Fatalf("factor=%v want 1.0", got)
	}
	var nilTable *RegionTable
	if got := nilTable.Factor(0, 0, 0); got != 1.0 {
		t.Fatalf("nil table factor=%v want 1.0", got)
	}
}

func TestFactor_BoostInsideCellOnly(t *testing.T) {
	const lat, lon = -27.47, 153.03
	tbl, err := NewRegionTable([]config.RegionBoost{{
		Name:       "metro",
		Cells:      []string{cellFor(t, lat, lon, 5)},
		Resolution: 5,
		Factor:     1.2,
	}})
	if err != nil {
		t.Fatalf("NewRegionTable: %v", err)
	}

	if got := tbl.Factor(lat, lon, 0); got != 1.2 {
		t.Fatalf("inside cell: factor=%v want 1.2", got)
	}
	// a point on the other side of the continent is in a different cell
	if got := tbl.Factor(-31.95, 115.86, 0); got != 1.0 {
		t.Fatalf("outside cell: factor=%v want 1.0", got)
	}
}

func TestFactor_RecencyBonusRequiresMinYear(t *testing.T) {
	const lat, lon = -27.47, 153.03
	tbl, err := NewRegionTable([]config.RegionBoost{{
		Name:          "metro",
		Cells:         []string{cellFor(t, lat, lon, 5)},
		Resolution:    5,
		Factor:        1.2,
		MinYear:       2020,
		RecencyFactor: 1.1,
	}})
	if err != nil {
		t.Fatalf("NewRegionTable: %v", err)
	}

	recent := tbl.Factor(lat, lon, 2021)
	old := tbl.Factor(lat, lon, 2015)
	unknown := tbl.Factor(lat, lon, 0)

	if recent <= old {
		t.Fatalf("recent survey %v should beat old %v", recent, old)
	}
	if old != 1.2 || unknown != 1.2 {
		t.Fatalf("base factor should still apply: old=%v unknown=%v", old, unknown)
	}
}

func TestFactor_OverlappingRegionsTakeTheLargest(t *testing.T) {
	const lat, lon = -27.47, 153.03
	tbl, err := NewRegionTable([]config.RegionBoost{
		{Name: "broad", Cells: []string{cellFor(t, lat, lon, 4)}, Resolution: 4, Factor: 1.1},
		{Name: "tight", Cells: []string{cellFor(t, lat, lon, 7)}, Resolution: 7, Factor: 1.3},
	})
	if err != nil {
		t.Fatalf("NewRegionTable: %v", err)
	}
	if got := tbl.Factor(lat, lon, 0); got != 1.3 {
		t.Fatalf("factor=%v want the larger of the overlapping boosts", got)
	}
}

func TestNewRegionTable_RejectsBadEntries(t *testing.T) {
	cases := []struct {
		name  string
		entry config.RegionBoost
	}{
		{"bad resolution", config.RegionBoost{Name: "x", Resolution: 16, Factor: 1.1}},
		{"zero factor", config.RegionBoost{Name: "x", Resolution: 5, Factor: 0}},
		{"garbage cell", config.RegionBoost{
			Name: "x", Resolution: 5, Factor: 1.1, Cells: []string{"not-a-cell"},
		}},
		{"resolution mismatch", config.RegionBoost{
			Name: "x", Resolution: 9, Factor: 1.1,
			Cells: []string{cellFor(t, -27.47, 153.03, 5)},
		}},
	}
	for _, tc := range cases {
		if _, err := NewRegionTable([]config.RegionBoost{tc.entry}); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}
