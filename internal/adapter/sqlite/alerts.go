package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
)

// InsertEvacuationAlert records an automatic crowd-evacuation broadcast.
func (s *Store) InsertEvacuationAlert(ctx context.Context, a *domain.EvacuationAlert) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO evacuation_alerts
		(disaster_id, latitude, longitude, direction_degrees, sent_at) VALUES (?, ?, ?, ?, ?)`,
		a.DisasterID, a.AreaLocation.Lat, a.AreaLocation.Lng, a.DirectionDegrees, toMillis(a.SentAt))
	if err != nil {
		return fmt.Errorf("insert evacuation alert: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("evacuation alert id: %w", err)
	}
	return nil
}

// EvacuationAlertsSince lists a disaster's crowd alerts sent at or after since.
func (s *Store) EvacuationAlertsSince(ctx context.Context, disasterID int64, since time.Time) ([]domain.EvacuationAlert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, disaster_id, latitude, longitude, direction_degrees, sent_at
		FROM evacuation_alerts WHERE disaster_id = ? AND sent_at >= ? ORDER BY sent_at DESC, id DESC`,
		disasterID, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("query evacuation alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.EvacuationAlert
	for rows.Next() {
		var (
			a      domain.EvacuationAlert
			sentAt int64
		)
		if err := rows.Scan(&a.ID, &a.DisasterID, &a.AreaLocation.Lat, &a.AreaLocation.Lng, &a.DirectionDegrees, &sentAt); err != nil {
			return nil, fmt.Errorf("scan evacuation alert: %w", err)
		}
		a.SentAt = fromMillis(sentAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAlertLog writes a notification audit row.
func (s *Store) InsertAlertLog(ctx context.Context, l *domain.AlertLog) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO alert_logs
		(kind, title, body, disaster_id, recipients, delivered, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(l.Kind), l.Title, l.Body, nullInt(l.DisasterID), l.Recipients, l.Delivered, toMillis(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert alert log: %w", err)
	}
	if l.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("alert log id: %w", err)
	}
	return nil
}

// ListAlertLogs pages through notification logs, newest first.
func (s *Store) ListAlertLogs(ctx context.Context, limit, offset int) ([]domain.AlertLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, title, body, disaster_id, recipients, delivered, created_at
		FROM alert_logs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query alert logs: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertLog
	for rows.Next() {
		var (
			l          domain.AlertLog
			kind       string
			disasterID sql.NullInt64
			createdAt  int64
		)
		if err := rows.Scan(&l.ID, &kind, &l.Title, &l.Body, &disasterID, &l.Recipients, &l.Delivered, &createdAt); err != nil {
			return nil, fmt.Errorf("scan alert log: %w", err)
		}
		l.Kind = domain.AlertKind(kind)
		l.DisasterID = intPtr(disasterID)
		l.CreatedAt = fromMillis(createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}
