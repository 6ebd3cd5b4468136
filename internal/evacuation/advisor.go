// Package evacuation turns safe areas and crowd movement into guidance, and
// raises throttled community evacuation alerts.
package evacuation

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/crowd"
	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/jonboulle/clockwork"
)

const (
	SafeAreaMaxDistanceKm = 30.0
	WalkingSpeedKmh       = 5.0
	CrowdRadiusKm         = 5.0
	CrowdWindow           = 5 * time.Minute

	DefaultNearbyRadiusKm = 20.0
	MaxNearbySafeAreas    = 20
)

// Guidance is the evacuation advice for one position. At most one of the
// safe area or crowd fields is populated.
type Guidance struct {
	HasSafeArea          bool             `json:"has_safe_area"`
	SafeArea             *domain.SafeArea `json:"safe_area"`
	DistanceKm           *float64         `json:"distance_km"`
	EstimatedTimeMinutes *float64         `json:"estimated_time_minutes"`
	BearingToSafeArea    *float64         `json:"bearing_to_safe_area"`
	CrowdDirection       *float64         `json:"crowd_direction"`
	CrowdConfidence      *float64         `json:"crowd_confidence"`
	CrowdDeviceCount     *int             `json:"crowd_device_count,omitempty"`
}

// NearbySafeArea pairs a safe area with its distance from the query point.
type NearbySafeArea struct {
	domain.SafeArea
	DistanceKm float64 `json:"distance_km"`
}

// AdvisorStore is the read model the advisor needs.
type AdvisorStore interface {
	ListActiveSafeAreas(ctx context.Context) ([]domain.SafeArea, error)
	SamplesNear(ctx context.Context, center geo.Point, radiusKm float64, since time.Time) ([]domain.LocationSample, error)
}

// Advisor computes evacuation guidance.
type Advisor struct {
	store AdvisorStore
	clock clockwork.Clock
}

// NewAdvisor creates an Advisor.
func NewAdvisor(store AdvisorStore, clock clockwork.Clock) *Advisor {
	return &Advisor{store: store, clock: clock}
}

// Direction prefers the nearest active safe area within reach and falls back
// to the movement of the surrounding crowd. When disasterID is set, areas
// designated for a different disaster are ignored.
func (a *Advisor) Direction(ctx context.Context, p geo.Point, disasterID *int64) (Guidance, error) {
	if !p.Valid() {
		return Guidance{}, domain.Invalid("location", "latitude/longitude out of range")
	}

	areas, err := a.store.ListActiveSafeAreas(ctx)
	if err != nil {
		return Guidance{}, err
	}
	if nearest, dist, ok := nearestArea(areas, p, disasterID); ok && dist <= SafeAreaMaxDistanceKm {
		minutes := dist / WalkingSpeedKmh * 60
		bearing := geo.BearingDegrees(p, nearest.Location)
		return Guidance{
			HasSafeArea:          true,
			SafeArea:             &nearest,
			DistanceKm:           ptr(round(dist, 2)),
			EstimatedTimeMinutes: ptr(round(minutes, 1)),
			BearingToSafeArea:    ptr(round(bearing, 1)),
		}, nil
	}

	signal, ok, err := a.crowdSignal(ctx, p)
	if err != nil {
		return Guidance{}, err
	}
	if !ok {
		return Guidance{}, nil
	}
	return Guidance{
		CrowdDirection:   ptr(round(signal.Direction, 1)),
		CrowdConfidence:  ptr(round(signal.Confidence, 2)),
		CrowdDeviceCount: &signal.DeviceCount,
	}, nil
}

func (a *Advisor) crowdSignal(ctx context.Context, p geo.Point) (crowd.Signal, bool, error) {
	samples, err := a.store.SamplesNear(ctx, p, CrowdRadiusKm, a.clock.Now().Add(-CrowdWindow))
	if err != nil {
		return crowd.Signal{}, false, err
	}
	signal, ok := crowd.Analyze(crowd.Headings(samples))
	return signal, ok, nil
}

// NearbySafeAreas lists active safe areas within radiusKm of p, nearest
// first. A non-positive radius uses DefaultNearbyRadiusKm.
func (a *Advisor) NearbySafeAreas(ctx context.Context, p geo.Point, radiusKm float64) ([]NearbySafeArea, error) {
	if !p.Valid() {
		return nil, domain.Invalid("location", "latitude/longitude out of range")
	}
	if radiusKm <= 0 {
		radiusKm = DefaultNearbyRadiusKm
	}
	areas, err := a.store.ListActiveSafeAreas(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]NearbySafeArea, 0, len(areas))
	for _, area := range areas {
		if d := geo.DistanceKm(p, area.Location); d <= radiusKm {
			out = append(out, NearbySafeArea{SafeArea: area, DistanceKm: round(d, 2)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > MaxNearbySafeAreas {
		out = out[:MaxNearbySafeAreas]
	}
	return out, nil
}

func nearestArea(areas []domain.SafeArea, p geo.Point, disasterID *int64) (domain.SafeArea, float64, bool) {
	var (
		best  domain.SafeArea
		bestD = math.Inf(1)
		found bool
	)
	for _, area := range areas {
		if disasterID != nil && area.DisasterID != nil && *area.DisasterID != *disasterID {
			continue
		}
		if d := geo.DistanceKm(p, area.Location); d < bestD {
			best, bestD, found = area, d, true
		}
	}
	return best, bestD, found
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func ptr[T any](v T) *T { return &v }
