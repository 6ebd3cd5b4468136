package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.MigrateUp())
	return s
}

func newDisaster(reporter string) *domain.Disaster {
	return &domain.Disaster{
		ReporterID:         reporter,
		Location:           geo.Point{Lat: 13.0827, Lng: 80.2707},
		LocationName:       "Chennai",
		Severity:           domain.DefaultSeverity,
		Status:             domain.StatusPending,
		AlertStatus:        domain.AlertInitial,
		DangerRadiusKm:     domain.DefaultDangerRadiusKm,
		EmergencyThreshold: domain.DefaultEmergencyThreshold,
		CreatedAt:          t0,
	}
}

func TestMigrate_Version(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.MigrateUp(), "second run is a no-op")

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, s.MigrateDown())
	version, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestDisaster_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := newDisaster("reporter-1")
	require.NoError(t, s.CreateDisaster(ctx, d))
	assert.NotZero(t, d.ID)

	got, err := s.GetDisaster(ctx, d.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(d, got); diff != "" {
		t.Errorf("disaster mismatch (-want +got):\n%s", diff)
	}

	_, err = s.GetDisaster(ctx, d.ID+100)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateDisaster_CommitsAndRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := newDisaster("reporter-1")
	require.NoError(t, s.CreateDisaster(ctx, d))

	err := s.UpdateDisaster(ctx, d.ID, func(tx domain.DisasterTx, cur *domain.Disaster) error {
		require.NoError(t, tx.InsertVerification(ctx, &domain.VerificationResponse{
			DisasterID: cur.ID, UserID: "u1", IsConfirmed: true, CreatedAt: t0,
		}))
		cur.YesCount++
		return tx.SaveDisaster(ctx, cur)
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.UpdateDisaster(ctx, d.ID, func(tx domain.DisasterTx, cur *domain.Disaster) error {
		require.NoError(t, tx.InsertVerification(ctx, &domain.VerificationResponse{
			DisasterID: cur.ID, UserID: "u2", IsConfirmed: false, CreatedAt: t0,
		}))
		cur.NoCount++
		require.NoError(t, tx.SaveDisaster(ctx, cur))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetDisaster(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.YesCount)
	assert.Equal(t, 0, got.NoCount)

	yes, no, err := s.CountVerifications(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, yes)
	assert.Equal(t, 0, no)
}

func TestUpdateDisaster_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateDisaster(context.Background(), 404, func(domain.DisasterTx, *domain.Disaster) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerification_UniquePerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := newDisaster("reporter-1")
	require.NoError(t, s.CreateDisaster(ctx, d))

	err := s.UpdateDisaster(ctx, d.ID, func(tx domain.DisasterTx, cur *domain.Disaster) error {
		has, err := tx.HasVerification(ctx, cur.ID, "u1")
		require.NoError(t, err)
		assert.False(t, has)

		loc := geo.Point{Lat: 13.08, Lng: 80.27}
		require.NoError(t, tx.InsertVerification(ctx, &domain.VerificationResponse{
			DisasterID: cur.ID, UserID: "u1", IsConfirmed: true, ReporterLocation: &loc, CreatedAt: t0,
		}))
		has, err = tx.HasVerification(ctx, cur.ID, "u1")
		require.NoError(t, err)
		assert.True(t, has)

		return tx.InsertVerification(ctx, &domain.VerificationResponse{
			DisasterID: cur.ID, UserID: "u1", IsConfirmed: false, CreatedAt: t0,
		})
	})
	require.Error(t, err, "unique constraint rejects the second row")
}

func TestTrustScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	score, err := s.TrustScore(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.InitialTrustScore, score)

	d := newDisaster("u1")
	require.NoError(t, s.CreateDisaster(ctx, d))
	err = s.UpdateDisaster(ctx, d.ID, func(tx domain.DisasterTx, cur *domain.Disaster) error {
		for _, next := range []int{90, 80} {
			prev, err := tx.TrustScore(ctx, "u1")
			require.NoError(t, err)
			require.NoError(t, tx.AppendTrustEvent(ctx, &domain.TrustScoreEvent{
				UserID: "u1", PreviousScore: prev, NewScore: next, Reason: "False alarm report",
				DisasterID: &cur.ID, CreatedAt: t0,
			}))
		}
		return nil
	})
	require.NoError(t, err)

	score, err = s.TrustScore(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 80, score)

	history, err := s.TrustHistory(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 90, history[0].PreviousScore)
	assert.Equal(t, d.ID, *history[0].DisasterID)
}

func TestListDisasters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pending := newDisaster("a")
	falseAlarm := newDisaster("b")
	falseAlarm.Status = domain.StatusFalseAlarm
	emergency := newDisaster("c")
	emergency.Status = domain.StatusVerified
	emergency.AlertStatus = domain.AlertEmergencyActive
	emergency.CreatedAt = t0.Add(time.Minute)
	far := newDisaster("d")
	far.Location = geo.Point{Lat: 28.61, Lng: 77.20}
	demo := newDisaster("e")
	demo.IsDemo = true
	demo.Status = domain.StatusVerified
	for _, d := range []*domain.Disaster{pending, falseAlarm, emergency, far, demo} {
		require.NoError(t, s.CreateDisaster(ctx, d))
	}

	active, err := s.ListActiveDisasters(ctx, 50)
	require.NoError(t, err)
	require.Len(t, active, 4)
	assert.Equal(t, emergency.ID, active[0].ID, "newest first")

	emergencies, err := s.ListEmergencyDisasters(ctx)
	require.NoError(t, err)
	require.Len(t, emergencies, 1)
	assert.Equal(t, emergency.ID, emergencies[0].ID)

	near, err := s.DisastersWithin(ctx, geo.Point{Lat: 13.08, Lng: 80.27}, 50, 20)
	require.NoError(t, err)
	assert.Len(t, near, 3)

	demos, err := s.ListUnresolvedDemos(ctx)
	require.NoError(t, err)
	require.Len(t, demos, 1)
	assert.Equal(t, demo.ID, demos[0].ID)
}

func TestSafeArea_Ownership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	area := &domain.SafeArea{
		ID: "area-1", Name: "Stadium", Location: geo.Point{Lat: 13.06, Lng: 80.28},
		RadiusKm: 1, IsActive: true, OwnerID: "auth-1", CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, s.CreateSafeArea(ctx, area))

	_, err := s.UpdateOwnedSafeArea(ctx, "area-1", "auth-2", func(a *domain.SafeArea) error {
		t.Fatal("fn must not run for another owner")
		return nil
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	updated, err := s.UpdateOwnedSafeArea(ctx, "area-1", "auth-1", func(a *domain.SafeArea) error {
		a.Name = "North Stadium"
		a.UpdatedAt = t0.Add(time.Hour)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "North Stadium", updated.Name)

	_, err = s.UpdateOwnedSafeArea(ctx, "area-1", "auth-1", func(a *domain.SafeArea) error {
		a.IsActive = false
		return nil
	})
	require.NoError(t, err)

	_, err = s.GetSafeArea(ctx, "area-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	active, err := s.ListActiveSafeAreas(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSamples_NearAndPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	center := geo.Point{Lat: 13.0, Lng: 80.0}
	heading := 90.0

	samples := []domain.LocationSample{
		{DeviceHash: "h1", Location: geo.Point{Lat: 13.01, Lng: 80.0}, Heading: &heading, Timestamp: t0},
		{DeviceHash: "h2", Location: geo.Point{Lat: 13.0, Lng: 80.01}, Timestamp: t0.Add(time.Minute)},
		{DeviceHash: "h3", Location: geo.Point{Lat: 13.2, Lng: 80.0}, Timestamp: t0.Add(time.Minute)},
		{DeviceHash: "h4", Location: geo.Point{Lat: 13.0, Lng: 80.0}, Timestamp: t0.Add(-20 * time.Minute)},
	}
	for i := range samples {
		require.NoError(t, s.InsertSample(ctx, &samples[i]))
	}

	got, err := s.SamplesNear(ctx, center, 5, t0.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "h1", got[0].DeviceHash)
	require.NotNil(t, got[0].Heading)
	assert.InDelta(t, 90.0, *got[0].Heading, 1e-9)
	assert.Nil(t, got[1].Heading)

	purged, err := s.PurgeSamplesBefore(ctx, t0.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestEvacuationAlertsSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := newDisaster("r")
	require.NoError(t, s.CreateDisaster(ctx, d))

	old := &domain.EvacuationAlert{DisasterID: d.ID, AreaLocation: d.Location, DirectionDegrees: 10, SentAt: t0}
	recent := &domain.EvacuationAlert{DisasterID: d.ID, AreaLocation: d.Location, DirectionDegrees: 20, SentAt: t0.Add(5 * time.Minute)}
	require.NoError(t, s.InsertEvacuationAlert(ctx, old))
	require.NoError(t, s.InsertEvacuationAlert(ctx, recent))

	got, err := s.EvacuationAlertsSince(ctx, d.ID, t0.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recent.ID, got[0].ID)
}

func TestDevices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"dev-a", "dev-b"} {
		require.NoError(t, s.UpsertDevice(ctx, &domain.Device{
			DeviceID: id, PushToken: "ExponentPushToken[" + id + "]", Platform: "android",
			LastSeen: t0.Add(time.Duration(i) * time.Minute), CreatedAt: t0,
		}))
	}

	tokens, err := s.ActivePushTokens(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ExponentPushToken[dev-b]", "ExponentPushToken[dev-a]"}, tokens)

	tokens, err = s.ActivePushTokens(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)

	require.NoError(t, s.DeactivateDevice(ctx, "dev-b"))
	require.ErrorIs(t, s.TouchDevice(ctx, "dev-x", t0), domain.ErrNotFound)

	stats, err := s.DeviceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStats{Total: 2, Active: 1, Android: 2}, stats)

	require.NoError(t, s.TouchDevice(ctx, "dev-b", t0.Add(time.Hour)))
	stats, err = s.DeviceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Active, "heartbeat reactivates")
}

func TestAlertLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := range 3 {
		require.NoError(t, s.InsertAlertLog(ctx, &domain.AlertLog{
			Kind: domain.AlertKindTest, Title: "Test", Recipients: 2, Delivered: i,
			CreatedAt: t0.Add(time.Duration(i) * time.Second),
		}))
	}
	logs, err := s.ListAlertLogs(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 2, logs[0].Delivered)
	assert.Equal(t, domain.AlertKindTest, logs[0].Kind)
}

func TestExternalAlerts_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loc := geo.Point{Lat: 19.07, Lng: 72.87}
	a := &domain.ExternalAlert{
		ID:         domain.ExternalAlertID(domain.SourceTwitter, "t-1", ""),
		Source:     domain.SourceTwitter,
		SourceID:   "t-1",
		Text:       "Flooding near the station",
		Location:   &loc,
		Confidence: 0.8,
		Keywords:   []string{"flood"},
		CreatedAt:  t0,
	}

	inserted, err := s.InsertExternalAlert(ctx, a)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertExternalAlert(ctx, a)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, s.MarkExternalAlertProcessed(ctx, a.ID))

	list, err := s.ListExternalAlerts(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Processed)
	assert.Equal(t, []string{"flood"}, list[0].Keywords)
	require.NotNil(t, list[0].Location)
	assert.InDelta(t, 19.07, list[0].Location.Lat, 1e-9)
}

func TestCheckReadiness(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CheckReadiness(context.Background()))
}
