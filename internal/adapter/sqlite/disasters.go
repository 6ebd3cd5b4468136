package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
)

const disasterColumns = `id, reporter_id, latitude, longitude, location_name, description, media_url,
	severity, hazard_detected, status, alert_status, verification_count_yes, verification_count_no,
	danger_radius_km, emergency_confirmation_threshold, is_demo, created_at, escalated_at, resolved_at`

// CreateDisaster inserts d and assigns its ID.
func (s *Store) CreateDisaster(ctx context.Context, d *domain.Disaster) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO disasters (
		reporter_id, latitude, longitude, location_name, description, media_url,
		severity, hazard_detected, status, alert_status, verification_count_yes, verification_count_no,
		danger_radius_km, emergency_confirmation_threshold, is_demo, created_at, escalated_at, resolved_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ReporterID, d.Location.Lat, d.Location.Lng, d.LocationName, d.Description, d.MediaURL,
		d.Severity, d.HazardDetected, d.Status.String(), d.AlertStatus.String(), d.YesCount, d.NoCount,
		d.DangerRadiusKm, d.EmergencyThreshold, d.IsDemo, toMillis(d.CreatedAt),
		nullMillis(d.EscalatedAt), nullMillis(d.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert disaster: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("disaster id: %w", err)
	}
	d.ID = id
	return nil
}

// GetDisaster loads a disaster by id.
func (s *Store) GetDisaster(ctx context.Context, id int64) (*domain.Disaster, error) {
	return getDisaster(ctx, s.db, id)
}

// ListActiveDisasters returns PENDING and VERIFIED reports, newest first.
func (s *Store) ListActiveDisasters(ctx context.Context, limit int) ([]domain.Disaster, error) {
	return s.listDisasters(ctx, `WHERE status IN ('PENDING', 'VERIFIED') ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// ListEmergencyDisasters returns every disaster whose alert is EMERGENCY_ACTIVE.
func (s *Store) ListEmergencyDisasters(ctx context.Context) ([]domain.Disaster, error) {
	return s.listDisasters(ctx, `WHERE alert_status = 'EMERGENCY_ACTIVE' ORDER BY created_at DESC, id DESC`)
}

// ListUnresolvedDemos returns demo disasters that never reached RESOLVED.
func (s *Store) ListUnresolvedDemos(ctx context.Context) ([]domain.Disaster, error) {
	return s.listDisasters(ctx, `WHERE is_demo = 1 AND status != 'RESOLVED' ORDER BY id`)
}

func (s *Store) listDisasters(ctx context.Context, where string, args ...any) ([]domain.Disaster, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+disasterColumns+` FROM disasters `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query disasters: %w", err)
	}
	defer rows.Close()

	var out []domain.Disaster
	for rows.Next() {
		d, err := scanDisaster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateDisaster loads the disaster inside a transaction and hands it to fn.
// fn persists its changes through the DisasterTx; returning an error rolls
// everything back. A missing disaster yields domain.ErrNotFound.
func (s *Store) UpdateDisaster(ctx context.Context, id int64, fn func(tx domain.DisasterTx, d *domain.Disaster) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		d, err := getDisaster(ctx, tx, id)
		if err != nil {
			return err
		}
		return fn(&disasterTx{tx: tx}, d)
	})
}

func getDisaster(ctx context.Context, q queryer, id int64) (*domain.Disaster, error) {
	row := q.QueryRowContext(ctx, `SELECT `+disasterColumns+` FROM disasters WHERE id = ?`, id)
	d, err := scanDisaster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("disaster")
	}
	return d, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDisaster(row scanner) (*domain.Disaster, error) {
	var (
		d                   domain.Disaster
		status, alertStatus string
		createdAt           int64
		escalatedAt         sql.NullInt64
		resolvedAt          sql.NullInt64
	)
	err := row.Scan(&d.ID, &d.ReporterID, &d.Location.Lat, &d.Location.Lng, &d.LocationName, &d.Description,
		&d.MediaURL, &d.Severity, &d.HazardDetected, &status, &alertStatus, &d.YesCount, &d.NoCount,
		&d.DangerRadiusKm, &d.EmergencyThreshold, &d.IsDemo, &createdAt, &escalatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan disaster: %w", err)
	}
	if d.Status, err = domain.ParseDisasterStatus(status); err != nil {
		return nil, err
	}
	if d.AlertStatus, err = domain.ParseAlertStatus(alertStatus); err != nil {
		return nil, err
	}
	d.CreatedAt = fromMillis(createdAt)
	d.EscalatedAt = timePtr(escalatedAt)
	d.ResolvedAt = timePtr(resolvedAt)
	return &d, nil
}

// disasterTx implements domain.DisasterTx over a single *sql.Tx.
type disasterTx struct {
	tx *sql.Tx
}

func (t *disasterTx) HasVerification(ctx context.Context, disasterID int64, userID string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM verification_responses WHERE disaster_id = ? AND user_id = ?`,
		disasterID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check verification: %w", err)
	}
	return n > 0, nil
}

func (t *disasterTx) InsertVerification(ctx context.Context, v *domain.VerificationResponse) error {
	var lat, lng sql.NullFloat64
	if v.ReporterLocation != nil {
		lat = sql.NullFloat64{Float64: v.ReporterLocation.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: v.ReporterLocation.Lng, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, `INSERT INTO verification_responses
		(disaster_id, user_id, is_confirmed, latitude, longitude, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		v.DisasterID, v.UserID, v.IsConfirmed, lat, lng, toMillis(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("verification id: %w", err)
	}
	return nil
}

func (t *disasterTx) SaveDisaster(ctx context.Context, d *domain.Disaster) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE disasters SET
		severity = ?, hazard_detected = ?, status = ?, alert_status = ?,
		verification_count_yes = ?, verification_count_no = ?,
		escalated_at = ?, resolved_at = ?
		WHERE id = ?`,
		d.Severity, d.HazardDetected, d.Status.String(), d.AlertStatus.String(),
		d.YesCount, d.NoCount, nullMillis(d.EscalatedAt), nullMillis(d.ResolvedAt), d.ID)
	if err != nil {
		return fmt.Errorf("update disaster: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NotFound("disaster")
	}
	return nil
}

func (t *disasterTx) TrustScore(ctx context.Context, userID string) (int, error) {
	return trustScore(ctx, t.tx, userID)
}

func (t *disasterTx) AppendTrustEvent(ctx context.Context, e *domain.TrustScoreEvent) error {
	return appendTrustEvent(ctx, t.tx, e)
}

// CountVerifications returns the persisted yes/no responses for a disaster.
func (s *Store) CountVerifications(ctx context.Context, disasterID int64) (yes, no int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN is_confirmed THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_confirmed THEN 0 ELSE 1 END), 0)
		FROM verification_responses WHERE disaster_id = ?`, disasterID).Scan(&yes, &no)
	if err != nil {
		return 0, 0, fmt.Errorf("count verifications: %w", err)
	}
	return yes, no, nil
}

// DisastersWithin returns active disasters whose location is within radiusKm
// of center, newest first.
func (s *Store) DisastersWithin(ctx context.Context, center geo.Point, radiusKm float64, limit int) ([]domain.Disaster, error) {
	all, err := s.listDisasters(ctx, `WHERE status IN ('PENDING', 'VERIFIED') ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Disaster, 0, limit)
	for _, d := range all {
		if geo.WithinRadius(d.Location, center, radiusKm) {
			out = append(out, d)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
