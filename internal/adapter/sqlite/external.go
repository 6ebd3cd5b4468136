package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
)

// InsertExternalAlert stores a crawler alert. Replays of an existing ID are
// ignored and reported with inserted=false.
func (s *Store) InsertExternalAlert(ctx context.Context, a *domain.ExternalAlert) (inserted bool, err error) {
	keywords, err := json.Marshal(a.Keywords)
	if err != nil {
		return false, fmt.Errorf("encode keywords: %w", err)
	}
	if a.Keywords == nil {
		keywords = []byte("[]")
	}
	var lat, lng sql.NullFloat64
	if a.Location != nil {
		lat = sql.NullFloat64{Float64: a.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: a.Location.Lng, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO external_alerts
		(id, source, source_id, source_url, text_content, media_url, location_text, latitude, longitude,
		 confidence, keywords, is_processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, string(a.Source), a.SourceID, a.SourceURL, a.Text, a.MediaURL, a.LocationText, lat, lng,
		a.Confidence, string(keywords), a.Processed, toMillis(a.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert external alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("external alert rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkExternalAlertProcessed flags an alert as broadcast.
func (s *Store) MarkExternalAlertProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE external_alerts SET is_processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark external alert processed: %w", err)
	}
	return requireRow(res, "external alert")
}

// ListExternalAlerts pages through crawler alerts, newest first.
func (s *Store) ListExternalAlerts(ctx context.Context, limit, offset int) ([]domain.ExternalAlert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, source_id, source_url, text_content, media_url,
		location_text, latitude, longitude, confidence, keywords, is_processed, created_at
		FROM external_alerts ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query external alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.ExternalAlert
	for rows.Next() {
		var (
			a         domain.ExternalAlert
			source    string
			lat, lng  sql.NullFloat64
			keywords  string
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &source, &a.SourceID, &a.SourceURL, &a.Text, &a.MediaURL, &a.LocationText,
			&lat, &lng, &a.Confidence, &keywords, &a.Processed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan external alert: %w", err)
		}
		a.Source = domain.ExternalSource(source)
		if lat.Valid && lng.Valid {
			a.Location = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
		}
		if err := json.Unmarshal([]byte(keywords), &a.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords for %s: %w", a.ID, err)
		}
		a.CreatedAt = fromMillis(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}
