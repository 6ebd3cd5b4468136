package evacuation

import (
	"context"
	"errors"
	"strings"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultSafeAreaRadiusKm applies when a new area omits its radius.
const DefaultSafeAreaRadiusKm = 0.5

// SafeAreaStore persists safe areas.
type SafeAreaStore interface {
	GetDisaster(ctx context.Context, id int64) (*domain.Disaster, error)
	CreateSafeArea(ctx context.Context, a *domain.SafeArea) error
	GetSafeArea(ctx context.Context, id string) (*domain.SafeArea, error)
	UpdateOwnedSafeArea(ctx context.Context, id, ownerID string, fn func(a *domain.SafeArea) error) (*domain.SafeArea, error)
	ListSafeAreasByOwner(ctx context.Context, ownerID string) ([]domain.SafeArea, error)
}

// SafeAreaInput creates a safe area.
type SafeAreaInput struct {
	Name        string    `json:"name"`
	Location    geo.Point `json:"location"`
	RadiusKm    float64   `json:"radius_km"`
	Description string    `json:"description"`
	DisasterID  *int64    `json:"disaster_id"`
}

// SafeAreaPatch updates the non-nil fields of a safe area.
type SafeAreaPatch struct {
	Name        *string  `json:"name"`
	RadiusKm    *float64 `json:"radius_km"`
	Description *string  `json:"description"`
	IsActive    *bool    `json:"is_active"`
}

// SafeAreas manages authority-owned safe areas. Areas are only ever
// soft-deleted; mutations by anyone but the owner look like a missing area.
type SafeAreas struct {
	store SafeAreaStore
	clock clockwork.Clock
}

// NewSafeAreas creates a SafeAreas service.
func NewSafeAreas(store SafeAreaStore, clock clockwork.Clock) *SafeAreas {
	return &SafeAreas{store: store, clock: clock}
}

// Create validates in and stores a new active area owned by ownerID.
func (s *SafeAreas) Create(ctx context.Context, ownerID string, in SafeAreaInput) (*domain.SafeArea, error) {
	if ownerID == "" {
		return nil, domain.Invalid("owner", "required")
	}
	if !in.Location.Valid() {
		return nil, domain.Invalid("location", "latitude/longitude out of range")
	}
	if in.RadiusKm == 0 {
		in.RadiusKm = DefaultSafeAreaRadiusKm
	}
	if in.RadiusKm < 0 {
		return nil, domain.Invalid("radius_km", "must be positive")
	}
	if in.DisasterID != nil {
		if _, err := s.store.GetDisaster(ctx, *in.DisasterID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.Invalid("disaster_id", "unknown disaster %d", *in.DisasterID)
			}
			return nil, err
		}
	}
	now := s.clock.Now()
	a := &domain.SafeArea{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Location:    in.Location,
		RadiusKm:    in.RadiusKm,
		Description: in.Description,
		IsActive:    true,
		OwnerID:     ownerID,
		DisasterID:  in.DisasterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateSafeArea(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns an active safe area.
func (s *SafeAreas) Get(ctx context.Context, id string) (*domain.SafeArea, error) {
	return s.store.GetSafeArea(ctx, id)
}

// Update applies patch to an area owned by ownerID.
func (s *SafeAreas) Update(ctx context.Context, id, ownerID string, patch SafeAreaPatch) (*domain.SafeArea, error) {
	if patch.RadiusKm != nil && *patch.RadiusKm <= 0 {
		return nil, domain.Invalid("radius_km", "must be positive")
	}
	return s.store.UpdateOwnedSafeArea(ctx, id, ownerID, func(a *domain.SafeArea) error {
		if patch.Name != nil {
			a.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.RadiusKm != nil {
			a.RadiusKm = *patch.RadiusKm
		}
		if patch.Description != nil {
			a.Description = *patch.Description
		}
		if patch.IsActive != nil {
			a.IsActive = *patch.IsActive
		}
		a.UpdatedAt = s.clock.Now()
		return nil
	})
}

// Deactivate soft-deletes an area owned by ownerID.
func (s *SafeAreas) Deactivate(ctx context.Context, id, ownerID string) error {
	inactive := false
	_, err := s.Update(ctx, id, ownerID, SafeAreaPatch{IsActive: &inactive})
	return err
}

// Mine lists the active areas owned by ownerID.
func (s *SafeAreas) Mine(ctx context.Context, ownerID string) ([]domain.SafeArea, error) {
	return s.store.ListSafeAreasByOwner(ctx, ownerID)
}
