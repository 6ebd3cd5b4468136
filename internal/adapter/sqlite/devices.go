package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
)

// UpsertDevice registers a device or refreshes its token and reactivates it.
func (s *Store) UpsertDevice(ctx context.Context, d *domain.Device) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO devices (device_id, push_token, platform, is_active, last_seen, created_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			push_token = excluded.push_token,
			platform = excluded.platform,
			is_active = 1,
			last_seen = excluded.last_seen`,
		d.DeviceID, d.PushToken, d.Platform, toMillis(d.LastSeen), toMillis(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	d.IsActive = true
	return nil
}

// TouchDevice records a heartbeat. Unknown devices yield domain.ErrNotFound.
func (s *Store) TouchDevice(ctx context.Context, deviceID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE devices SET last_seen = ?, is_active = 1 WHERE device_id = ?`,
		toMillis(at), deviceID)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	return requireRow(res, "device")
}

// DeactivateDevice soft-deletes a registration.
func (s *Store) DeactivateDevice(ctx context.Context, deviceID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE devices SET is_active = 0 WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("deactivate device: %w", err)
	}
	return requireRow(res, "device")
}

// ActivePushTokens returns up to limit tokens of active devices, most recently
// seen first. A limit of zero or less returns every token.
func (s *Store) ActivePushTokens(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT push_token FROM devices
		WHERE is_active = 1 AND push_token != '' ORDER BY last_seen DESC, device_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query push tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, fmt.Errorf("scan push token: %w", err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}

// DeviceStats counts registered devices, overall and per platform.
func (s *Store) DeviceStats(ctx context.Context) (domain.DeviceStats, error) {
	var st domain.DeviceStats
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(is_active), 0),
		COALESCE(SUM(CASE WHEN platform = 'android' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN platform = 'ios' THEN 1 ELSE 0 END), 0)
		FROM devices`).
		Scan(&st.Total, &st.Active, &st.Android, &st.IOS)
	if err != nil {
		return domain.DeviceStats{}, fmt.Errorf("device stats: %w", err)
	}
	return st, nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffected, kind string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", kind, err)
	}
	if n == 0 {
		return domain.NotFound(kind)
	}
	return nil
}
