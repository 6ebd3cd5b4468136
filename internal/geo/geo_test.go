package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
		tol  float64
	}{
		{name: "same point", a: Point{12.97, 77.59}, b: Point{12.97, 77.59}, want: 0, tol: 1e-9},
		{name: "one degree of latitude", a: Point{0, 0}, b: Point{1, 0}, want: 111.195, tol: 0.01},
		{name: "london to paris", a: Point{51.5074, -0.1278}, b: Point{48.8566, 2.3522}, want: 343.5, tol: 1},
		{name: "antipodal", a: Point{0, 0}, b: Point{0, 180}, want: math.Pi * EarthRadiusKm, tol: 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DistanceKm(tt.a, tt.b), tt.tol)
		})
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	pairs := [][2]Point{
		{{13.08, 80.27}, {12.97, 77.59}},
		{{-33.86, 151.21}, {40.71, -74.0}},
		{{89.9, 10}, {-89.9, -170}},
	}
	for _, p := range pairs {
		assert.InDelta(t, DistanceKm(p[0], p[1]), DistanceKm(p[1], p[0]), 1e-9)
	}
}

func TestBearingDegrees(t *testing.T) {
	origin := Point{0, 0}
	tests := []struct {
		name string
		to   Point
		want float64
	}{
		{name: "north", to: Point{1, 0}, want: 0},
		{name: "east", to: Point{0, 1}, want: 90},
		{name: "south", to: Point{-1, 0}, want: 180},
		{name: "west", to: Point{0, -1}, want: 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, BearingDegrees(origin, tt.to), 1e-6)
		})
	}
}

func TestWithinRadius(t *testing.T) {
	center := Point{0, 0}
	assert.True(t, WithinRadius(Point{0.04, 0}, center, 5))
	assert.False(t, WithinRadius(Point{0.05, 0}, center, 5))
	assert.True(t, WithinRadius(center, center, 0))
}

func TestCircularDifference(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{10, 20, 10},
		{350, 10, 20},
		{10, 350, 20},
		{0, 180, 180},
		{90, 270, 180},
		{359, 1, 2},
		{720, 0, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, CircularDifference(tt.a, tt.b), 1e-9, "a=%v b=%v", tt.a, tt.b)
	}
}

func TestCircularMean(t *testing.T) {
	tests := []struct {
		name   string
		angles []float64
		want   float64
	}{
		{name: "single", angles: []float64{45}, want: 45},
		{name: "wraps around north", angles: []float64{350, 10}, want: 0},
		{name: "east cluster", angles: []float64{80, 90, 100}, want: 90},
		{name: "just west of north", angles: []float64{340, 350}, want: 345},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CircularMean(tt.angles)
			assert.InDelta(t, 0, CircularDifference(tt.want, got), 1e-6, "got %v", got)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
		})
	}
}

func TestCircularMean_Empty(t *testing.T) {
	assert.True(t, math.IsNaN(CircularMean(nil)))
}

func TestCompassPoint(t *testing.T) {
	tests := map[float64]string{
		0:     "North",
		22:    "North",
		23:    "North-East",
		90:    "East",
		180:   "South",
		225:   "South-West",
		315:   "North-West",
		350:   "North",
		-90:   "West",
		359.9: "North",
	}
	for deg, want := range tests {
		assert.Equal(t, want, CompassPoint(deg), "deg=%v", deg)
	}
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{45, 90}.Valid())
	assert.False(t, Point{91, 0}.Valid())
	assert.False(t, Point{0, -181}.Valid())
	assert.False(t, Point{math.NaN(), 0}.Valid())
}
