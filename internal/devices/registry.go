// Package devices manages the push-notification registry. Registration
// needs no account: devices receive alerts before anyone logs in.
package devices

import (
	"context"
	"strings"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

var tokenPrefixes = []string{"ExponentPushToken[", "ExpoPushToken["}

// Store persists device registrations.
type Store interface {
	UpsertDevice(ctx context.Context, d *domain.Device) error
	TouchDevice(ctx context.Context, deviceID string, at time.Time) error
	DeactivateDevice(ctx context.Context, deviceID string) error
	DeviceStats(ctx context.Context) (domain.DeviceStats, error)
}

// Registration is the payload a device sends to register.
type Registration struct {
	DeviceID  string `json:"device_id"`
	PushToken string `json:"expo_push_token"`
	Platform  string `json:"platform"`
}

// Registry registers, refreshes and retires devices.
type Registry struct {
	store Store
	clock clockwork.Clock
}

// NewRegistry creates a Registry.
func NewRegistry(store Store, clock clockwork.Clock) *Registry {
	return &Registry{store: store, clock: clock}
}

// ValidPushToken reports whether token looks like an Expo push token.
func ValidPushToken(token string) bool {
	for _, p := range tokenPrefixes {
		if strings.HasPrefix(token, p) && strings.HasSuffix(token, "]") {
			return true
		}
	}
	return false
}

// Register creates or refreshes a device and reactivates it.
func (r *Registry) Register(ctx context.Context, reg Registration) (*domain.Device, error) {
	if strings.TrimSpace(reg.DeviceID) == "" {
		return nil, domain.Invalid("device_id", "required")
	}
	if !ValidPushToken(reg.PushToken) {
		return nil, domain.Invalid("expo_push_token", "invalid Expo push token format")
	}
	now := r.clock.Now()
	d := &domain.Device{
		DeviceID:  reg.DeviceID,
		PushToken: reg.PushToken,
		Platform:  strings.ToLower(strings.TrimSpace(reg.Platform)),
		LastSeen:  now,
		CreatedAt: now,
	}
	if err := r.store.UpsertDevice(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Heartbeat marks a registered device as seen now.
func (r *Registry) Heartbeat(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return domain.Invalid("device_id", "required")
	}
	return r.store.TouchDevice(ctx, deviceID, r.clock.Now())
}

// Unregister stops notifications to a device.
func (r *Registry) Unregister(ctx context.Context, deviceID string) error {
	return r.store.DeactivateDevice(ctx, deviceID)
}

// Stats summarizes the registry.
func (r *Registry) Stats(ctx context.Context) (domain.DeviceStats, error) {
	return r.store.DeviceStats(ctx)
}
