// Package proj projects stored WGS84 coordinates for export.
package proj

import (
	"fmt"
	"math"
	"strings"

	"github.com/wegman-software/osmhuge/internal/coordindex"
)

// SRID constants for the supported projections
const (
	SRID4326 = 4326 // WGS84 (lat/lon)
	SRID3857 = 3857 // Web Mercator
)

const (
	// semi-major axis of the WGS84 ellipsoid in meters
	earthRadius = 6378137.0
	maxExtent   = 20037508.342789244
	// latitude limit of the square Web Mercator world
	maxLat = 85.06
)

// Transformer projects WGS84 lon/lat into the target SRID.
type Transformer struct {
	target int
}

// NewTransformer returns a transformer into target, which must be 4326 or
// 3857.
func NewTransformer(target int) (*Transformer, error) {
	if target != SRID4326 && target != SRID3857 {
		return nil, fmt.Errorf("unsupported target SRID: %d (only 4326 and 3857 supported)", target)
	}
	return &Transformer{target: target}, nil
}

// SRID returns the target SRID.
func (t *Transformer) SRID() int {
	return t.target
}

// Transform converts a WGS84 lon/lat into x, y of the target projection.
func (t *Transformer) Transform(lon, lat float64) (x, y float64) {
	if t.target == SRID3857 {
		return lonLatToWebMercator(lon, lat)
	}
	return lon, lat
}

// AppendCollection appends the projected coordinates of c to dst as a flat
// x1, y1, x2, y2, ... sequence.
func (t *Transformer) AppendCollection(dst []float64, c coordindex.Collection) []float64 {
	for p := range c.All() {
		x, y := t.Transform(float64(p.Lon), float64(p.Lat))
		dst = append(dst, x, y)
	}
	return dst
}

func lonLatToWebMercator(lon, lat float64) (x, y float64) {
	// the poles project to infinity
	lat = max(-maxLat, min(maxLat, lat))

	x = lon * maxExtent / 180.0
	latRad := lat * math.Pi / 180.0
	y = math.Log(math.Tan(math.Pi/4.0+latRad/2.0)) * earthRadius
	return x, y
}

func webMercatorToLonLat(x, y float64) (lon, lat float64) {
	lon = x * 180.0 / maxExtent
	lat = (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180.0 / math.Pi
	return lon, lat
}

// ParseSRID parses a projection string to SRID
// Accepts: "4326", "3857", "EPSG:4326", "EPSG:3857"
func ParseSRID(s string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "4326", "EPSG:4326":
		return SRID4326, nil
	case "3857", "EPSG:3857":
		return SRID3857, nil
	default:
		return 0, fmt.Errorf("unsupported projection: %s (supported: 4326, 3857)", s)
	}
}
