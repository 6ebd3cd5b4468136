// Package location ingests anonymized device pings, enforces sample
// retention and answers danger-zone questions.
package location

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/blake2b"
)

// Retention is how long samples are kept.
const Retention = 10 * time.Minute

// Store is the persistence the tracker needs.
type Store interface {
	InsertSample(ctx context.Context, sample *domain.LocationSample) error
	PurgeSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GetDisaster(ctx context.Context, id int64) (*domain.Disaster, error)
	ListEmergencyDisasters(ctx context.Context) ([]domain.Disaster, error)
}

// Ping is a raw device position report.
type Ping struct {
	DeviceID string    `json:"device_id"`
	Location geo.Point `json:"location"`
	Heading  *float64  `json:"heading"`
	Speed    *float64  `json:"speed"`
}

// Update is a position report made while following a specific disaster.
type Update struct {
	DeviceID   string    `json:"device_id"`
	DisasterID int64     `json:"disaster_id"`
	Location   geo.Point `json:"location"`
	Accuracy   *float64  `json:"accuracy"`
}

// RadiusCheck tells a device whether it sits inside a danger zone.
type RadiusCheck struct {
	InDangerZone      bool    `json:"in_danger_zone"`
	DistanceKm        float64 `json:"distance_km"`
	ShouldVibrate     bool    `json:"should_vibrate"`
	DisasterID        int64   `json:"disaster_id"`
	DisasterLatitude  float64 `json:"disaster_latitude"`
	DisasterLongitude float64 `json:"disaster_longitude"`
	DangerRadiusKm    float64 `json:"danger_radius_km"`
}

// Zone is an active emergency area.
type Zone struct {
	DisasterID        int64   `json:"disaster_id"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	DangerRadiusKm    float64 `json:"danger_radius_km"`
	LocationName      string  `json:"location_name"`
	SeverityLevel     int     `json:"severity_level"`
	ConfirmationCount int     `json:"confirmation_count"`
}

// Tracker stores pings under a keyed one-way device hash so raw device
// identifiers never reach storage.
type Tracker struct {
	store   Store
	hashKey []byte
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewTracker creates a Tracker. hashKey may be empty, which yields an
// unkeyed hash; it must not exceed 64 bytes.
func NewTracker(store Store, hashKey []byte, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*Tracker, error) {
	if len(hashKey) > blake2b.Size {
		return nil, fmt.Errorf("device hash key longer than %d bytes", blake2b.Size)
	}
	return &Tracker{store: store, hashKey: hashKey, clock: clock, logger: logger, metrics: metrics}, nil
}

// HashDevice returns the anonymized identifier stored for deviceID.
func (t *Tracker) HashDevice(deviceID string) string {
	h, err := blake2b.New256(t.hashKey)
	if err != nil {
		// Key length is checked in NewTracker.
		panic(err)
	}
	h.Write([]byte(deviceID))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Ingest validates and stores a ping, then sweeps expired samples. A failed
// sweep is logged; the ping is already stored.
func (t *Tracker) Ingest(ctx context.Context, p Ping) error {
	if p.DeviceID == "" {
		return domain.Invalid("device_id", "required")
	}
	if !p.Location.Valid() {
		return domain.Invalid("location", "latitude/longitude out of range")
	}
	if p.Heading != nil && (math.IsNaN(*p.Heading) || *p.Heading < 0 || *p.Heading > 360) {
		return domain.Invalid("heading", "must be between 0 and 360")
	}
	if p.Speed != nil && (math.IsNaN(*p.Speed) || *p.Speed < 0) {
		return domain.Invalid("speed", "must not be negative")
	}
	if err := t.store.InsertSample(ctx, &domain.LocationSample{
		DeviceHash: t.HashDevice(p.DeviceID),
		Location:   p.Location,
		Heading:    p.Heading,
		Speed:      p.Speed,
		Timestamp:  t.clock.Now(),
	}); err != nil {
		return err
	}
	t.metrics.SamplesIngested.Inc()

	if _, err := t.Sweep(ctx); err != nil {
		t.logger.Warn("location sweep failed", "error", err)
	}
	return nil
}

// Sweep deletes samples older than Retention and returns how many went.
func (t *Tracker) Sweep(ctx context.Context) (int64, error) {
	n, err := t.store.PurgeSamplesBefore(ctx, t.clock.Now().Add(-Retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.metrics.SamplesPurged.Add(float64(n))
		t.logger.Debug("expired location samples purged", "count", n)
	}
	return n, nil
}

// CheckRadius reports whether p lies inside the disaster's danger radius.
// Devices should vibrate only while the emergency is active.
func (t *Tracker) CheckRadius(ctx context.Context, disasterID int64, p geo.Point) (RadiusCheck, error) {
	if !p.Valid() {
		return RadiusCheck{}, domain.Invalid("location", "latitude/longitude out of range")
	}
	d, err := t.store.GetDisaster(ctx, disasterID)
	if err != nil {
		return RadiusCheck{}, err
	}
	return radiusCheck(d, p), nil
}

// UpdateLocation records a heading-less sample for a device following a
// disaster and returns its danger-zone status.
func (t *Tracker) UpdateLocation(ctx context.Context, u Update) (RadiusCheck, error) {
	if u.DeviceID == "" {
		return RadiusCheck{}, domain.Invalid("device_id", "required")
	}
	if !u.Location.Valid() {
		return RadiusCheck{}, domain.Invalid("location", "latitude/longitude out of range")
	}
	d, err := t.store.GetDisaster(ctx, u.DisasterID)
	if err != nil {
		return RadiusCheck{}, err
	}
	if err := t.Ingest(ctx, Ping{DeviceID: u.DeviceID, Location: u.Location}); err != nil {
		return RadiusCheck{}, err
	}
	return radiusCheck(d, u.Location), nil
}

// EmergencyZones lists every disaster with an active emergency.
func (t *Tracker) EmergencyZones(ctx context.Context) ([]Zone, error) {
	ds, err := t.store.ListEmergencyDisasters(ctx)
	if err != nil {
		return nil, err
	}
	zones := make([]Zone, 0, len(ds))
	for _, d := range ds {
		zones = append(zones, Zone{
			DisasterID:        d.ID,
			Latitude:          d.Location.Lat,
			Longitude:         d.Location.Lng,
			DangerRadiusKm:    d.DangerRadiusKm,
			LocationName:      d.LocationName,
			SeverityLevel:     d.Severity,
			ConfirmationCount: d.YesCount,
		})
	}
	return zones, nil
}

func radiusCheck(d *domain.Disaster, p geo.Point) RadiusCheck {
	dist := geo.DistanceKm(p, d.Location)
	in := dist <= d.DangerRadiusKm
	return RadiusCheck{
		InDangerZone:      in,
		DistanceKm:        math.Round(dist*1000) / 1000,
		ShouldVibrate:     in && d.AlertStatus == domain.AlertEmergencyActive,
		DisasterID:        d.ID,
		DisasterLatitude:  d.Location.Lat,
		DisasterLongitude: d.Location.Lng,
		DangerRadiusKm:    d.DangerRadiusKm,
	}
}
