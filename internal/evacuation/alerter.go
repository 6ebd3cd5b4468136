package evacuation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/crowd"
	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/couchcryptid/crowd-evac-service/internal/keylock"
	"github.com/couchcryptid/crowd-evac-service/internal/notify"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	ThrottleWindow   = 3 * time.Minute
	ThrottleRadiusKm = 2.0
)

// Reasons a crowd alert was not sent.
const (
	ReasonThrottled      = "throttled"
	ReasonNoCrowdPattern = "no_crowd_pattern"
)

// TriggerResult reports whether a crowd alert went out.
type TriggerResult struct {
	Triggered       bool     `json:"triggered"`
	Reason          string   `json:"reason,omitempty"`
	Direction       *float64 `json:"direction,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	DevicesNotified int      `json:"devices_notified"`
}

// AlerterStore is the persistence the crowd alerter needs.
type AlerterStore interface {
	GetDisaster(ctx context.Context, id int64) (*domain.Disaster, error)
	SamplesNear(ctx context.Context, center geo.Point, radiusKm float64, since time.Time) ([]domain.LocationSample, error)
	EvacuationAlertsSince(ctx context.Context, disasterID int64, since time.Time) ([]domain.EvacuationAlert, error)
	InsertEvacuationAlert(ctx context.Context, a *domain.EvacuationAlert) error
}

// Broadcaster delivers a message to every reachable device.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg notify.Message) notify.Outcome
}

// CrowdAlerter broadcasts the crowd's direction of travel, at most once per
// disaster and area inside the throttle window.
type CrowdAlerter struct {
	store       AlerterStore
	broadcaster Broadcaster
	locks       *keylock.Map[int64]
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewCrowdAlerter creates a CrowdAlerter.
func NewCrowdAlerter(store AlerterStore, broadcaster Broadcaster, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *CrowdAlerter {
	return &CrowdAlerter{
		store:       store,
		broadcaster: broadcaster,
		locks:       keylock.New[int64](),
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
	}
}

// Trigger checks the throttle, analyzes the crowd around p and, when a clear
// direction emerges, records and broadcasts an evacuation route. The throttle
// check and the record insert run under the disaster's lock.
func (c *CrowdAlerter) Trigger(ctx context.Context, disasterID int64, p geo.Point) (TriggerResult, error) {
	if !p.Valid() {
		return TriggerResult{}, domain.Invalid("location", "latitude/longitude out of range")
	}

	unlock := c.locks.Lock(disasterID)
	defer unlock()

	d, err := c.store.GetDisaster(ctx, disasterID)
	if err != nil {
		return TriggerResult{}, err
	}
	now := c.clock.Now()

	recent, err := c.store.EvacuationAlertsSince(ctx, d.ID, now.Add(-ThrottleWindow))
	if err != nil {
		return TriggerResult{}, err
	}
	for _, a := range recent {
		if geo.WithinRadius(a.AreaLocation, p, ThrottleRadiusKm) {
			c.metrics.CrowdAlerts.WithLabelValues(ReasonThrottled).Inc()
			return TriggerResult{Reason: ReasonThrottled}, nil
		}
	}

	samples, err := c.store.SamplesNear(ctx, p, CrowdRadiusKm, now.Add(-CrowdWindow))
	if err != nil {
		return TriggerResult{}, err
	}
	signal, ok := crowd.Analyze(crowd.Headings(samples))
	if !ok {
		c.metrics.CrowdAlerts.WithLabelValues(ReasonNoCrowdPattern).Inc()
		return TriggerResult{Reason: ReasonNoCrowdPattern}, nil
	}

	if err := c.store.InsertEvacuationAlert(ctx, &domain.EvacuationAlert{
		DisasterID:       d.ID,
		AreaLocation:     p,
		DirectionDegrees: signal.Direction,
		SentAt:           now,
	}); err != nil {
		return TriggerResult{}, err
	}

	compass := geo.CompassPoint(signal.Direction)
	out := c.broadcaster.Broadcast(ctx, notify.Message{
		Kind:       domain.AlertKindCrowdEvacuation,
		Title:      "Community Evacuation Route",
		Body:       fmt.Sprintf("Community is moving towards %s. Follow the crowd to safety.", compass),
		Priority:   notify.PriorityHigh,
		DisasterID: &d.ID,
		Data: map[string]any{
			"type":              "evacuation_route",
			"disaster_id":       d.ID,
			"direction_degrees": round(signal.Direction, 1),
			"latitude":          p.Lat,
			"longitude":         p.Lng,
		},
	})
	c.metrics.CrowdAlerts.WithLabelValues("triggered").Inc()
	c.logger.Info("crowd evacuation alert sent",
		"disaster_id", d.ID,
		"direction", compass,
		"confidence", signal.Confidence,
		"devices", out.Delivered,
	)

	return TriggerResult{
		Triggered:       true,
		Direction:       ptr(round(signal.Direction, 1)),
		Confidence:      ptr(round(signal.Confidence, 2)),
		DevicesNotified: out.Delivered,
	}, nil
}
