package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
)

// kmPerDegreeLat bounds the latitude prefilter for radius queries.
const kmPerDegreeLat = 110.574

// InsertSample appends an anonymized location sample.
func (s *Store) InsertSample(ctx context.Context, sample *domain.LocationSample) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO device_locations
		(device_hash, latitude, longitude, heading, speed, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sample.DeviceHash, sample.Location.Lat, sample.Location.Lng,
		nullFloat(sample.Heading), nullFloat(sample.Speed), toMillis(sample.Timestamp))
	if err != nil {
		return fmt.Errorf("insert location sample: %w", err)
	}
	if sample.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("location sample id: %w", err)
	}
	return nil
}

// PurgeSamplesBefore deletes samples recorded before cutoff and returns how
// many rows were removed.
func (s *Store) PurgeSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM device_locations WHERE recorded_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge location samples: %w", err)
	}
	return res.RowsAffected()
}

// SamplesNear returns samples recorded at or after since within radiusKm of
// center, ordered by timestamp then id so analysis sees a stable order.
func (s *Store) SamplesNear(ctx context.Context, center geo.Point, radiusKm float64, since time.Time) ([]domain.LocationSample, error) {
	dLat := radiusKm / kmPerDegreeLat
	rows, err := s.db.QueryContext(ctx, `SELECT id, device_hash, latitude, longitude, heading, speed, recorded_at
		FROM device_locations
		WHERE recorded_at >= ? AND latitude BETWEEN ? AND ?
		ORDER BY recorded_at, id`,
		toMillis(since), center.Lat-dLat, center.Lat+dLat)
	if err != nil {
		return nil, fmt.Errorf("query location samples: %w", err)
	}
	defer rows.Close()

	var out []domain.LocationSample
	for rows.Next() {
		var (
			sample         domain.LocationSample
			heading, speed sql.NullFloat64
			recordedAt     int64
		)
		if err := rows.Scan(&sample.ID, &sample.DeviceHash, &sample.Location.Lat, &sample.Location.Lng,
			&heading, &speed, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan location sample: %w", err)
		}
		if !geo.WithinRadius(sample.Location, center, radiusKm) {
			continue
		}
		sample.Heading = floatPtr(heading)
		sample.Speed = floatPtr(speed)
		sample.Timestamp = fromMillis(recordedAt)
		out = append(out, sample)
	}
	return out, rows.Err()
}
