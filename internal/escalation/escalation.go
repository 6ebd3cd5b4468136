// Package escalation flips a disaster into EMERGENCY_ACTIVE once its
// confirmations reach the emergency quorum, broadcasts the emergency, and
// owns the demo emergency lifecycle and resolution.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/couchcryptid/crowd-evac-service/internal/keylock"
	"github.com/couchcryptid/crowd-evac-service/internal/notify"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// DemoReporterID marks disasters created by the demo trigger.
const DemoReporterID = "system:demo"

// Eligible reports whether d has reached its emergency quorum and has not
// escalated before.
func Eligible(d *domain.Disaster) bool {
	if d.YesCount < d.EmergencyThreshold {
		return false
	}
	if !d.AlertStatus.CanTransitionTo(domain.AlertEmergencyActive) {
		return false
	}
	return d.Status == domain.StatusVerified || d.Status.CanTransitionTo(domain.StatusVerified)
}

// Apply moves d to EMERGENCY_ACTIVE and forces VERIFIED, overriding an
// earlier FALSE_ALARM.
func Apply(d *domain.Disaster, now time.Time) {
	d.AlertStatus = domain.AlertEmergencyActive
	d.Status = domain.StatusVerified
	d.EscalatedAt = &now
}

// Store is the persistence the controller needs.
type Store interface {
	CreateDisaster(ctx context.Context, d *domain.Disaster) error
	UpdateDisaster(ctx context.Context, id int64, fn func(tx domain.DisasterTx, d *domain.Disaster) error) error
	ListUnresolvedDemos(ctx context.Context) ([]domain.Disaster, error)
}

// Broadcaster delivers a message to every reachable device.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg notify.Message) notify.Outcome
}

// Controller announces escalations and resolves disasters. Demo emergencies
// auto-resolve through cancellable timers keyed by disaster id.
type Controller struct {
	store       Store
	broadcaster Broadcaster
	locks       *keylock.Map[int64]
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	demoAfter   time.Duration

	mu     sync.Mutex
	timers map[int64]clockwork.Timer
}

// NewController creates a Controller. locks must be the same map the
// verification service uses so resolution and escalation serialize.
func NewController(store Store, broadcaster Broadcaster, locks *keylock.Map[int64], clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, demoAfter time.Duration) *Controller {
	return &Controller{
		store:       store,
		broadcaster: broadcaster,
		locks:       locks,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		demoAfter:   demoAfter,
		timers:      make(map[int64]clockwork.Timer),
	}
}

// Announce broadcasts an escalated disaster. Callers hold the disaster lock
// and have already committed the EMERGENCY_ACTIVE transition.
func (c *Controller) Announce(ctx context.Context, d domain.Disaster) notify.Outcome {
	c.metrics.Escalations.Inc()
	c.logger.Warn("emergency escalated",
		"disaster_id", d.ID,
		"confirmations", d.YesCount,
		"danger_radius_km", d.DangerRadiusKm,
		"demo", d.IsDemo,
	)
	id := d.ID
	place := d.LocationName
	if place == "" {
		place = fmt.Sprintf("%.4f, %.4f", d.Location.Lat, d.Location.Lng)
	}
	return c.broadcaster.Broadcast(ctx, notify.Message{
		Kind:  domain.AlertKindEmergency,
		Title: "EMERGENCY: evacuate " + place,
		Body: fmt.Sprintf("Disaster confirmed by %d people near %s. Leave the %.1f km danger zone now.",
			d.YesCount, place, d.DangerRadiusKm),
		Priority:   notify.PriorityHigh,
		DisasterID: &id,
		Data: map[string]any{
			"type":               "emergency_alert",
			"disaster_id":        d.ID,
			"latitude":           d.Location.Lat,
			"longitude":          d.Location.Lng,
			"danger_radius_km":   d.DangerRadiusKm,
			"severity":           d.Severity,
			"confirmation_count": d.YesCount,
			"is_demo":            d.IsDemo,
		},
	})
}

// Resolve closes a VERIFIED or FALSE_ALARM disaster and its alert.
func (c *Controller) Resolve(ctx context.Context, id int64) (*domain.Disaster, error) {
	return c.resolve(ctx, id, false)
}

func (c *Controller) resolve(ctx context.Context, id int64, demoOnly bool) (*domain.Disaster, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	var resolved domain.Disaster
	err := c.store.UpdateDisaster(ctx, id, func(tx domain.DisasterTx, d *domain.Disaster) error {
		if demoOnly && !d.IsDemo {
			return domain.Ineligible(domain.ReasonNotDemo, "disaster is not a demo emergency")
		}
		if !d.Status.CanTransitionTo(domain.StatusResolved) {
			return domain.Ineligible(domain.ReasonNotResolvable,
				fmt.Sprintf("disaster in status %s cannot be resolved", d.Status))
		}
		now := c.clock.Now()
		d.Status = domain.StatusResolved
		if d.AlertStatus.CanTransitionTo(domain.AlertResolved) {
			d.AlertStatus = domain.AlertResolved
		}
		d.ResolvedAt = &now
		if err := tx.SaveDisaster(ctx, d); err != nil {
			return err
		}
		resolved = *d
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.cancelTimer(id)
	c.logger.Info("disaster resolved", "disaster_id", id, "demo", resolved.IsDemo)
	return &resolved, nil
}

// DemoRequest configures a demo emergency.
type DemoRequest struct {
	Location       geo.Point
	LocationName   string
	Severity       int
	DangerRadiusKm float64
}

// TriggerDemo creates an already-escalated demo disaster, broadcasts it and
// schedules its automatic resolution.
func (c *Controller) TriggerDemo(ctx context.Context, req DemoRequest) (*domain.Disaster, notify.Outcome, error) {
	if !req.Location.Valid() {
		return nil, notify.Outcome{}, domain.Invalid("location", "latitude/longitude out of range")
	}
	if req.Severity == 0 {
		req.Severity = 8
	}
	if req.Severity < 1 || req.Severity > 10 {
		return nil, notify.Outcome{}, domain.Invalid("severity", "must be between 1 and 10")
	}
	if req.DangerRadiusKm == 0 {
		req.DangerRadiusKm = domain.DefaultDangerRadiusKm
	}
	if req.DangerRadiusKm < 0 {
		return nil, notify.Outcome{}, domain.Invalid("danger_radius_km", "must be positive")
	}
	if req.LocationName == "" {
		req.LocationName = "Demo emergency"
	}

	now := c.clock.Now()
	d := &domain.Disaster{
		ReporterID:         DemoReporterID,
		Location:           req.Location,
		LocationName:       req.LocationName,
		Description:        "Demo emergency drill",
		Severity:           req.Severity,
		HazardDetected:     true,
		Status:             domain.StatusVerified,
		AlertStatus:        domain.AlertEmergencyActive,
		DangerRadiusKm:     req.DangerRadiusKm,
		EmergencyThreshold: domain.DefaultEmergencyThreshold,
		IsDemo:             true,
		CreatedAt:          now,
		EscalatedAt:        &now,
	}
	if err := c.store.CreateDisaster(ctx, d); err != nil {
		return nil, notify.Outcome{}, err
	}

	unlock := c.locks.Lock(d.ID)
	out := c.Announce(ctx, *d)
	c.schedule(d.ID, c.demoAfter)
	unlock()

	return d, out, nil
}

// CancelDemo resolves a demo emergency ahead of its timer.
func (c *Controller) CancelDemo(ctx context.Context, id int64) (*domain.Disaster, error) {
	return c.resolve(ctx, id, true)
}

// ReconcileDemos resolves demo disasters whose window elapsed without a live
// timer, such as those orphaned by a restart, and re-arms timers for the rest.
// It returns how many demos were resolved.
func (c *Controller) ReconcileDemos(ctx context.Context) (int, error) {
	demos, err := c.store.ListUnresolvedDemos(ctx)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, d := range demos {
		if c.scheduled(d.ID) {
			continue
		}
		remaining := c.demoAfter - c.clock.Since(d.CreatedAt)
		if remaining > 0 {
			c.schedule(d.ID, remaining)
			continue
		}
		if _, err := c.resolve(ctx, d.ID, true); err != nil {
			c.logger.Error("reconcile demo failed", "disaster_id", d.ID, "error", err)
			continue
		}
		resolved++
	}
	if resolved > 0 {
		c.logger.Info("orphaned demo emergencies resolved", "count", resolved)
	}
	return resolved, nil
}

// Stop cancels every pending demo timer.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Controller) schedule(id int64, after time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.timers[id]; ok {
		old.Stop()
	}
	c.timers[id] = c.clock.AfterFunc(after, func() {
		c.mu.Lock()
		delete(c.timers, id)
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := c.resolve(ctx, id, true)
		var inel *domain.IneligibleError
		switch {
		case err == nil:
			c.logger.Info("demo emergency auto-resolved", "disaster_id", id)
		case errors.As(err, &inel):
			c.logger.Debug("demo emergency already closed", "disaster_id", id, "reason", inel.Reason)
		default:
			c.logger.Error("demo auto-resolve failed", "disaster_id", id, "error", err)
		}
	})
}

func (c *Controller) cancelTimer(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Controller) scheduled(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timers[id]
	return ok
}
