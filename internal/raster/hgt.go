package raster

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// HGTSampler reads flat binary elevation tiles: square grids of big-endian
// int16 metres, one degree per tile, named like S28E153.hgt (the coordinate
// is the tile's south-west corner). SRTM3 tiles are 1201x1201, SRTM1
// 3601x3601; the grid size is derived from the file length.
//
// GDAL-class formats live behind the same Sampler interface in deployments
// that carry a cgo geospatial stack.
type HGTSampler struct {
	dir string
}

const hgtNoData = -32768

func NewHGT(dir string) *HGTSampler {
	return &HGTSampler{dir: dir}
}

func (s *HGTSampler) Open(_ context.Context, uri string) (Handle, error) {
	path := uri
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open tile %q: %w", uri, err)
	}

	samples := len(raw) / 2
	side := int(math.Sqrt(float64(samples)))
	if side < 2 || side*side*2 != len(raw) {
		return nil, fmt.Errorf("tile %q: unexpected size %d bytes", uri, len(raw))
	}

	swLat, swLon, err := parseTileName(filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("tile %q: %w", uri, err)
	}

	return &hgtTile{raw: raw, side: side, swLat: swLat, swLon: swLon}, nil
}

func (s *HGTSampler) Close(Handle) {}

type hgtTile struct {
	raw   []byte
	side  int
	swLat float64
	swLon float64
}

// Sample bilinearly interpolates the four surrounding cells. x is longitude,
// y latitude, in degrees.
func (t *hgtTile) Sample(x, y float64) (float64, bool, error) {
	if x < t.swLon || x > t.swLon+1 || y < t.swLat || y > t.swLat+1 {
		return 0, false, fmt.Errorf("point (%.6f, %.6f) outside tile", y, x)
	}

	// row 0 is the tile's north edge
	fx := (x - t.swLon) * float64(t.side-1)
	fy := (t.swLat + 1 - y) * float64(t.side-1)

	x0 := int(fx)
	y0 := int(fy)
	if x0 >= t.side-1 {
		x0 = t.side - 2
	}
	if y0 >= t.side-1 {
		y0 = t.side - 2
	}
	dx := fx - float64(x0)
	dy := fy - float64(y0)

	v00, ok00 := t.cell(x0, y0)
	v10, ok10 := t.cell(x0+1, y0)
	v01, ok01 := t.cell(x0, y0+1)
	v11, ok11 := t.cell(x0+1, y0+1)
	if !ok00 || !ok10 || !ok01 || !ok11 {
		return 0, false, nil
	}

	top := v00*(1-dx) + v10*dx
	bot := v01*(1-dx) + v11*dx
	return top*(1-dy) + bot*dy, true, nil
}

func (t *hgtTile) cell(cx, cy int) (float64, bool) {
	off := (cy*t.side + cx) * 2
	v := int16(binary.BigEndian.Uint16(t.raw[off : off+2]))
	if v == hgtNoData {
		return 0, false
	}
	return float64(v), true
}

func (t *hgtTile) BytesRead() int64 { return int64(len(t.raw)) }

// parseTileName extracts the south-west corner from names like S28E153.hgt
// or n40w105.hgt.
func parseTileName(name string) (lat, lon float64, err error) {
	base := strings.ToUpper(strings.TrimSuffix(name, filepath.Ext(name)))
	if len(base) != 7 {
		return 0, 0, fmt.Errorf("bad tile name %q", name)
	}
	var ns, ew string
	var latDeg, lonDeg int
	if _, err := fmt.Sscanf(base, "%1s%2d%1s%3d", &ns, &latDeg, &ew, &lonDeg); err != nil {
		return 0, 0, fmt.Errorf("bad tile name %q: %w", name, err)
	}
	lat = float64(latDeg)
	lon = float64(lonDeg)
	switch ns {
	case "S":
		lat = -lat
	case "N":
	default:
		return 0, 0, fmt.Errorf("bad tile name %q", name)
	}
	switch ew {
	case "W":
		lon = -lon
	case "E":
	default:
		return 0, 0, fmt.Errorf("bad tile name %q", name)
	}
	return lat, lon, nil
}
