// Package crs converts geographic points into projected coordinate systems.
//
// Axis convention, everywhere: x is the longitude-derived easting and y the
// latitude-derived northing. No call path ever swaps the pair.
package crs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/openterrain/resolver/internal/core/model"
)

// ellipsoid parameters
type ellipsoid struct {
	a float64 // semi-major axis, metres
	f float64 // flattening
}

var (
	wgs84 = ellipsoid{a: 6378137.0, f: 1 / 298.257223563}
	grs80 = ellipsoid{a: 6378137.0, f: 1 / 298.257222101}
)

// transform is one cached, reusable projection.
type transform struct {
	forward func(lat, lon float64) (x, y float64)
	inverse func(x, y float64) (lat, lon float64)
}

// Transformer caches a transform per CRS code. The cache is populated lazily
// and never evicted: the set of CRSs in use is small and finite.
type Transformer struct {
	mu    sync.RWMutex
	cache map[string]*transform
}

func New() *Transformer {
	return &Transformer{cache: make(map[string]*transform, 8)}
}

// Project converts a WGS84 point into the target CRS.
func (t *Transformer) Project(lat, lon float64, targetCRS string) (x, y float64, err error) {
	tr, err := t.lookup(targetCRS)
	if err != nil {
		return 0, 0, err
	}
	x, y = tr.forward(lat, lon)
	return x, y, nil
}

// Inverse converts projected coordinates back to WGS84, where an inverse
// exists.
func (t *Transformer) Inverse(x, y float64, sourceCRS string) (lat, lon float64, err error) {
	tr, err := t.lookup(sourceCRS)
	if err != nil {
		return 0, 0, err
	}
	lat, lon = tr.inverse(x, y)
	return lat, lon, nil
}

func (t *Transformer) lookup(code string) (*transform, error) {
	norm := strings.ToUpper(strings.TrimSpace(code))

	t.mu.RLock()
	tr, ok := t.cache[norm]
	t.mu.RUnlock()
	if ok {
		return tr, nil
	}

	tr, err := build(norm)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	// another goroutine may have built it meanwhile; keep the first one
	if existing, ok := t.cache[norm]; ok {
		tr = existing
	} else {
		t.cache[norm] = tr
	}
	t.mu.Unlock()
	return tr, nil
}

// Size reports how many transforms are cached, for health reporting.
func (t *Transformer) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cache)
}

func build(code string) (*transform, error) {
	switch {
	case code == "EPSG:4326" || code == "WGS84":
		return &transform{
			forward: func(lat, lon float64) (float64, float64) { return lon, lat },
			inverse: func(x, y float64) (float64, float64) { return y, x },
		}, nil

	case code == "EPSG:3857":
		return webMercator(), nil

	case strings.HasPrefix(code, "EPSG:326"), strings.HasPrefix(code, "EPSG:327"):
		// WGS84 / UTM. 326xx is the northern hemisphere, 327xx southern.
		zone, err := utmZone(code)
		if err != nil {
			return nil, err
		}
		south := strings.HasPrefix(code, "EPSG:327")
		return transverseMercator(wgs84, zone, south), nil

	case strings.HasPrefix(code, "EPSG:283"):
		// GDA94 / MGA zones 49-56 (28349-28356), always southern offset.
		zone, err := mgaZone(code)
		if err != nil {
			return nil, err
		}
		return transverseMercator(grs80, zone, true), nil
	}
	return nil, &model.CRSTransformationError{CRS: code, Reason: "unsupported coordinate system"}
}

func utmZone(code string) (int, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(code, "EPSG:326"), "EPSG:327")
	zone, err := strconv.Atoi(s)
	if err != nil || zone < 1 || zone > 60 {
		return 0, &model.CRSTransformationError{CRS: code, Reason: "invalid utm zone"}
	}
	return zone, nil
}

func mgaZone(code string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(code, "EPSG:283"))
	if err != nil || n < 49 || n > 56 {
		return 0, &model.CRSTransformationError{CRS: code, Reason: "invalid mga zone"}
	}
	return n, nil
}

func webMercator() *transform {
	const r = 6378137.0
	return &transform{
		forward: func(lat, lon float64) (float64, float64) {
			x := r * lon * math.Pi / 180
			y := r * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
			return x, y
		},
		inverse: func(x, y float64) (float64, float64) {
			lon := x / r * 180 / math.Pi
			lat := (2*math.Atan(math.Exp(y/r)) - math.Pi/2) * 180 / math.Pi
			return lat, lon
		},
	}
}

// transverseMercator builds the standard series-expansion UTM projection for
// the given ellipsoid and zone. Accurate to well under a metre inside the
// zone, which is far below raster cell size.
func transverseMercator(ell ellipsoid, zone int, south bool) *transform {
	const k0 = 0.9996
	const falseEasting = 500000.0
	falseNorthing := 0.0
	if south {
		falseNorthing = 10000000.0
	}
	lon0 := float64(zone)*6 - 183 // central meridian, degrees

	a := ell.a
	e2 := ell.f * (2 - ell.f)
	e4 := e2 * e2
	e6 := e4 * e2
	ep2 := e2 / (1 - e2)

	meridianArc := func(phi float64) float64 {
		return a * ((1-e2/4-3*e4/64-5*e6/256)*phi -
			(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
			(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
			(35*e6/3072)*math.Sin(6*phi))
	}

	forward := func(lat, lon float64) (float64, float64) {
		phi := lat * math.Pi / 180
		sin, cos := math.Sincos(phi)
		tan := sin / cos

		n := a / math.Sqrt(1-e2*sin*sin)
		t := tan * tan
		c := ep2 * cos * cos
		A := (lon - lon0) * math.Pi / 180 * cos

		m := meridianArc(phi)

		x := falseEasting + k0*n*(A+
			(1-t+c)*A*A*A/6+
			(5-18*t+t*t+72*c-58*ep2)*math.Pow(A, 5)/120)
		y := falseNorthing + k0*(m+n*tan*(A*A/2+
			(5-t+9*c+4*c*c)*math.Pow(A, 4)/24+
			(61-58*t+t*t+600*c-330*ep2)*math.Pow(A, 6)/720))
		return x, y
	}

	inverse := func(x, y float64) (float64, float64) {
		e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

		m := (y - falseNorthing) / k0
		mu := m / (a * (1 - e2/4 - 3*e4/64 - 5*e6/256))

		phi1 := mu +
			(3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
			(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
			(151*e1*e1*e1/96)*math.Sin(6*mu) +
			(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

		sin1, cos1 := math.Sincos(phi1)
		tan1 := sin1 / cos1

		c1 := ep2 * cos1 * cos1
		t1 := tan1 * tan1
		n1 := a / math.Sqrt(1-e2*sin1*sin1)
		r1 := a * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
		d := (x - falseEasting) / (n1 * k0)

		phi := phi1 - (n1*tan1/r1)*(d*d/2-
			(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
			(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
		lam := (d -
			(1+2*t1+c1)*d*d*d/6 +
			(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cos1

		lat := phi * 180 / math.Pi
		lon := lon0 + lam*180/math.Pi
		return lat, lon
	}

	return &transform{forward: forward, inverse: inverse}
}

// ZoneFor picks the WGS84 UTM EPSG code covering the point, a convenience
// for manifests that omit a native CRS.
func ZoneFor(lat, lon float64) string {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	if lat < 0 {
		return fmt.Sprintf("EPSG:327%02d", zone)
	}
	return fmt.Sprintf("EPSG:326%02d", zone)
}
