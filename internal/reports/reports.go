// Package reports accepts disaster reports from users and serves the
// public disaster read model.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/couchcryptid/crowd-evac-service/internal/notify"
	"github.com/jonboulle/clockwork"
)

const (
	ActiveLimit           = 50
	NearbyLimit           = 20
	DefaultNearbyRadiusKm = 50.0
	VerifierFanout        = 100
	MaxDescriptionLength  = 2000
)

// Store is the persistence the report service needs.
type Store interface {
	CreateDisaster(ctx context.Context, d *domain.Disaster) error
	GetDisaster(ctx context.Context, id int64) (*domain.Disaster, error)
	ListActiveDisasters(ctx context.Context, limit int) ([]domain.Disaster, error)
	DisastersWithin(ctx context.Context, center geo.Point, radiusKm float64, limit int) ([]domain.Disaster, error)
}

// TrustGate decides whether a user may still file reports.
type TrustGate interface {
	CanReport(ctx context.Context, userID string) error
}

// Broadcaster delivers a message to every reachable device.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg notify.Message) notify.Outcome
}

// Input is a new disaster report.
type Input struct {
	Location     geo.Point `json:"location"`
	LocationName string    `json:"location_name"`
	Description  string    `json:"description"`
	MediaURL     string    `json:"media_url"`
}

// Service files reports and asks nearby devices to verify them.
type Service struct {
	store       Store
	gate        TrustGate
	classifier  domain.MediaClassifier
	broadcaster Broadcaster
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewService creates a Service. classifier may be nil, in which case every
// report gets domain.DefaultSeverity.
func NewService(store Store, gate TrustGate, classifier domain.MediaClassifier, broadcaster Broadcaster, clock clockwork.Clock, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		gate:        gate,
		classifier:  classifier,
		broadcaster: broadcaster,
		clock:       clock,
		logger:      logger,
	}
}

// Create files a PENDING report for reporterID and requests verification.
func (s *Service) Create(ctx context.Context, reporterID string, in Input) (*domain.Disaster, error) {
	if reporterID == "" {
		return nil, domain.Invalid("reporter_id", "required")
	}
	if !in.Location.Valid() {
		return nil, domain.Invalid("location", "latitude/longitude out of range")
	}
	if len(in.Description) > MaxDescriptionLength {
		return nil, domain.Invalid("description", "longer than %d characters", MaxDescriptionLength)
	}
	if err := s.gate.CanReport(ctx, reporterID); err != nil {
		return nil, err
	}

	cls := s.classify(ctx, in.MediaURL)
	name := strings.TrimSpace(in.LocationName)
	if name == "" {
		name = fmt.Sprintf("Location (%.4f, %.4f)", in.Location.Lat, in.Location.Lng)
	}
	d := &domain.Disaster{
		ReporterID:         reporterID,
		Location:           in.Location,
		LocationName:       name,
		Description:        strings.TrimSpace(in.Description),
		MediaURL:           in.MediaURL,
		Severity:           cls.Severity,
		HazardDetected:     cls.HazardDetected,
		Status:             domain.StatusPending,
		AlertStatus:        domain.AlertInitial,
		DangerRadiusKm:     domain.DefaultDangerRadiusKm,
		EmergencyThreshold: domain.DefaultEmergencyThreshold,
		CreatedAt:          s.clock.Now(),
	}
	if err := s.store.CreateDisaster(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("disaster reported",
		"disaster_id", d.ID,
		"severity", d.Severity,
		"hazard_detected", d.HazardDetected,
	)

	s.broadcaster.Broadcast(ctx, notify.Message{
		Kind:       domain.AlertKindVerifyRequest,
		Title:      "Verification Needed",
		Body:       fmt.Sprintf("A disaster was reported near %s. Can you confirm it?", d.LocationName),
		Priority:   notify.PriorityHigh,
		DisasterID: &d.ID,
		Limit:      VerifierFanout,
		Data: map[string]any{
			"type":        "verification_request",
			"disaster_id": d.ID,
			"location":    d.LocationName,
			"severity":    d.Severity,
		},
	})
	return d, nil
}

// classify asks the media classifier for a severity and degrades to the
// default on any failure.
func (s *Service) classify(ctx context.Context, mediaURL string) domain.Classification {
	fallback := domain.Classification{Severity: domain.DefaultSeverity}
	if s.classifier == nil || mediaURL == "" {
		return fallback
	}
	cls, err := s.classifier.Analyze(ctx, mediaURL)
	if err != nil {
		s.logger.Warn("media classification failed, using default severity", "error", err)
		return fallback
	}
	cls.Severity = min(max(cls.Severity, 1), 10)
	return cls
}

// Get returns one disaster.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Disaster, error) {
	return s.store.GetDisaster(ctx, id)
}

// Active lists PENDING and VERIFIED disasters, newest first.
func (s *Service) Active(ctx context.Context) ([]domain.Disaster, error) {
	return s.store.ListActiveDisasters(ctx, ActiveLimit)
}

// Nearby lists active disasters within radiusKm of p, newest first. A
// non-positive radius uses DefaultNearbyRadiusKm.
func (s *Service) Nearby(ctx context.Context, p geo.Point, radiusKm float64) ([]domain.Disaster, error) {
	if !p.Valid() {
		return nil, domain.Invalid("location", "latitude/longitude out of range")
	}
	if radiusKm <= 0 {
		radiusKm = DefaultNearbyRadiusKm
	}
	return s.store.DisastersWithin(ctx, p, radiusKm, NearbyLimit)
}
