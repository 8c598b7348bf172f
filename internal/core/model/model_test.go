package model

import (
	"errors"
	"math"
	"testing"
)

func TestGeoBounds_Contains_BoundaryInclusive(t *testing.T) {
	b := GeoBounds{MinLat: -28.5, MaxLat: -27.5, MinLon: 152.5, MaxLon: 153.5}

	cases := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"interior", -28.0, 153.0, true},
		{"south edge", -28.5, 153.0, true},
		{"north edge", -27.5, 153.0, true},
		{"west edge", -28.0, 152.5, true},
		{"east edge", -28.0, 153.5, true},
		{"corner", -28.5, 152.5, true},
		{"just outside lat", -28.500001, 153.0, false},
		{"just outside lon", -28.0, 153.500001, false},
	}
	for _, tc := range cases {
		if got := b.Contains(tc.lat, tc.lon); got != tc.want {
			t.Errorf("%s: Contains(%v,%v)=%v want %v", tc.name, tc.lat, tc.lon, got, tc.want)
		}
	}
}

func TestGeoBounds_Valid(t *testing.T) {
	if !(GeoBounds{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}).Valid() {
		t.Fatalf("expected valid")
	}
	if (GeoBounds{MinLat: 2, MaxLat: 1, MinLon: 0, MaxLon: 1}).Valid() {
		t.Fatalf("inverted lat accepted")
	}
	if (GeoBounds{MinLat: 0, MaxLat: 1, MinLon: 5, MaxLon: 1}).Valid() {
		t.Fatalf("inverted lon accepted")
	}
}

func TestValidateCoordinates(t *testing.T) {
	if err := ValidateCoordinates(-27.47, 153.03); err != nil {
		t.Fatalf("valid point rejected: %v", err)
	}
	// poles and antimeridian are on the domain boundary, not outside it
	if err := ValidateCoordinates(90, 180); err != nil {
		t.Fatalf("boundary point rejected: %v", err)
	}
	var ce *CoordinateError
	if err := ValidateCoordinates(-91, 0); !errors.As(err, &ce) {
		t.Fatalf("expected CoordinateError, got %v", err)
	}
	if err := ValidateCoordinates(0, 181); !errors.As(err, &ce) {
		t.Fatalf("expected CoordinateError, got %v", err)
	}
	// NaN fails both range comparisons and would otherwise slip through
	for _, bad := range [][2]float64{
		{math.NaN(), 153.03},
		{-27.47, math.NaN()},
		{math.Inf(1), 0},
		{0, math.Inf(-1)},
	} {
		if err := ValidateCoordinates(bad[0], bad[1]); !errors.As(err, &ce) {
			t.Fatalf("(%v,%v) accepted as valid coordinates", bad[0], bad[1])
		}
	}
}

func TestQueryPoint_Projected_ComputesOncePerCRS(t *testing.T) {
	p := NewQueryPoint(-27.5, 153.0)

	calls := 0
	fn := func(lat, lon float64) (float64, float64, error) {
		calls++
		return lon * 100, lat * 100, nil
	}

	x, y, err := p.Projected("EPSG:28356", fn)
	if err != nil {
		t.Fatalf("Projected: %v", err)
	}
	if x != 15300 || y != -2750 {
		t.Fatalf("got (%v,%v)", x, y)
	}
	if _, _, err := p.Projected("EPSG:28356", fn); err != nil {
		t.Fatalf("Projected cached: %v", err)
	}
	if calls != 1 {
		t.Fatalf("transform ran %d times, want 1", calls)
	}

	// a different CRS reprojects
	if _, _, err := p.Projected("EPSG:32756", fn); err != nil {
		t.Fatalf("Projected other crs: %v", err)
	}
	if calls != 2 {
		t.Fatalf("transform ran %d times, want 2", calls)
	}
}

func TestQueryPoint_Projected_ErrorNotCached(t *testing.T) {
	p := NewQueryPoint(0, 0)
	boom := errors.New("no parameters")
	calls := 0
	fn := func(lat, lon float64) (float64, float64, error) {
		calls++
		return 0, 0, boom
	}
	if _, _, err := p.Projected("EPSG:9999", fn); !errors.Is(err, boom) {
		t.Fatalf("expected transform error, got %v", err)
	}
	if _, _, err := p.Projected("EPSG:9999", fn); !errors.Is(err, boom) {
		t.Fatalf("expected transform error on retry, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("failed transform should not be cached; calls=%d", calls)
	}
}
