// Package geo provides the spherical geometry used by verification, crowd
// analysis and evacuation guidance. Coordinates are WGS-84 degrees.
package geo

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies inside the latitude/longitude ranges.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceKm returns the great-circle distance between a and b.
func DistanceKm(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h fractionally past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BearingDegrees returns the initial compass bearing from a toward b in [0,360).
func BearingDegrees(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	x := math.Sin(dLng) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	return NormalizeDegrees(toDegrees(math.Atan2(x, y)))
}

// WithinRadius reports whether p lies within radiusKm of center (inclusive).
func WithinRadius(p, center Point, radiusKm float64) bool {
	return DistanceKm(p, center) <= radiusKm
}

// CircularDifference returns the smallest angular gap between two headings.
func CircularDifference(a, b float64) float64 {
	d := math.Abs(NormalizeDegrees(a) - NormalizeDegrees(b))
	return math.Min(d, 360-d)
}

// CircularMean returns the vector-averaged heading of angles in [0,360).
// It returns NaN for an empty slice.
func CircularMean(angles []float64) float64 {
	if len(angles) == 0 {
		return math.NaN()
	}
	rad := make([]float64, len(angles))
	for i, a := range angles {
		rad[i] = toRadians(a)
	}
	return NormalizeDegrees(toDegrees(stat.CircularMean(rad, nil)))
}

// NormalizeDegrees maps any angle onto [0,360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

var compassPoints = [...]string{"North", "North-East", "East", "South-East", "South", "South-West", "West", "North-West"}

// CompassPoint names the 8-point compass sector a heading falls in.
func CompassPoint(deg float64) string {
	idx := int(math.Round(NormalizeDegrees(deg)/45)) % len(compassPoints)
	return compassPoints[idx]
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
