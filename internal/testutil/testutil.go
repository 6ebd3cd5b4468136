// Package testutil holds fixtures shared by service and adapter tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/adapter/sqlite"
	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/stretchr/testify/require"
)

// T0 is the fixed start time used by fake clocks in tests.
var T0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// Chennai is the default disaster location in fixtures.
var Chennai = geo.Point{Lat: 13.0827, Lng: 80.2707}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewStore opens a migrated SQLite store in a temp dir.
func NewStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.MigrateUp())
	return s
}

// PendingDisaster builds an unsaved PENDING disaster created at createdAt.
func PendingDisaster(reporter string, createdAt time.Time) *domain.Disaster {
	return &domain.Disaster{
		ReporterID:         reporter,
		Location:           Chennai,
		LocationName:       "Chennai",
		Severity:           domain.DefaultSeverity,
		Status:             domain.StatusPending,
		AlertStatus:        domain.AlertInitial,
		DangerRadiusKm:     domain.DefaultDangerRadiusKm,
		EmergencyThreshold: domain.DefaultEmergencyThreshold,
		CreatedAt:          createdAt,
	}
}

// SeedDisaster persists d and returns it with its id set.
func SeedDisaster(t *testing.T, s *sqlite.Store, d *domain.Disaster) *domain.Disaster {
	t.Helper()
	require.NoError(t, s.CreateDisaster(context.Background(), d))
	return d
}

// SeedDevices registers n active devices with valid Expo tokens.
func SeedDevices(t *testing.T, s *sqlite.Store, n int, at time.Time) {
	t.Helper()
	for i := range n {
		require.NoError(t, s.UpsertDevice(context.Background(), &domain.Device{
			DeviceID:  fmt.Sprintf("device-%d", i),
			PushToken: fmt.Sprintf("ExponentPushToken[%d]", i),
			Platform:  "android",
			IsActive:  true,
			LastSeen:  at,
			CreatedAt: at,
		}))
	}
}

// RecordingGateway captures dispatched notifications. Safe for concurrent use.
type RecordingGateway struct {
	mu   sync.Mutex
	sent []domain.Notification
	Err  error
}

func (g *RecordingGateway) Dispatch(_ context.Context, n domain.Notification) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, n)
	if g.Err != nil {
		return 0, g.Err
	}
	return len(n.Tokens), nil
}

// Sent returns a copy of everything dispatched so far.
func (g *RecordingGateway) Sent() []domain.Notification {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Notification(nil), g.sent...)
}

// Count reports how many notifications were dispatched.
func (g *RecordingGateway) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}
