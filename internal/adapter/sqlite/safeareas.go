package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
)

const safeAreaColumns = `id, name, latitude, longitude, radius_km, description, is_active, owner_id, disaster_id, created_at, updated_at`

// CreateSafeArea inserts a new safe area. The caller assigns the ID.
func (s *Store) CreateSafeArea(ctx context.Context, a *domain.SafeArea) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO safe_areas (`+safeAreaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Location.Lat, a.Location.Lng, a.RadiusKm, a.Description, a.IsActive, a.OwnerID,
		nullInt(a.DisasterID), toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert safe area: %w", err)
	}
	return nil
}

// GetSafeArea loads an active safe area.
func (s *Store) GetSafeArea(ctx context.Context, id string) (*domain.SafeArea, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+safeAreaColumns+` FROM safe_areas WHERE id = ? AND is_active = 1`, id)
	a, err := scanSafeArea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("safe area")
	}
	return a, err
}

// UpdateOwnedSafeArea loads the area owned by ownerID, applies fn and saves it.
// Areas owned by someone else are reported as missing.
func (s *Store) UpdateOwnedSafeArea(ctx context.Context, id, ownerID string, fn func(a *domain.SafeArea) error) (*domain.SafeArea, error) {
	var updated *domain.SafeArea
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+safeAreaColumns+` FROM safe_areas
			WHERE id = ? AND owner_id = ? AND is_active = 1`, id, ownerID)
		a, err := scanSafeArea(row)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotOwned("safe area")
		}
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE safe_areas SET name = ?, latitude = ?, longitude = ?, radius_km = ?,
			description = ?, is_active = ?, disaster_id = ?, updated_at = ? WHERE id = ?`,
			a.Name, a.Location.Lat, a.Location.Lng, a.RadiusKm, a.Description, a.IsActive,
			nullInt(a.DisasterID), toMillis(a.UpdatedAt), a.ID)
		if err != nil {
			return fmt.Errorf("update safe area: %w", err)
		}
		updated = a
		return nil
	})
	return updated, err
}

// ListActiveSafeAreas returns every active safe area.
func (s *Store) ListActiveSafeAreas(ctx context.Context) ([]domain.SafeArea, error) {
	return s.listSafeAreas(ctx, `WHERE is_active = 1 ORDER BY created_at, id`)
}

// ListSafeAreasByOwner returns the active areas created by ownerID, newest first.
func (s *Store) ListSafeAreasByOwner(ctx context.Context, ownerID string) ([]domain.SafeArea, error) {
	return s.listSafeAreas(ctx, `WHERE is_active = 1 AND owner_id = ? ORDER BY created_at DESC, id`, ownerID)
}

func (s *Store) listSafeAreas(ctx context.Context, where string, args ...any) ([]domain.SafeArea, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+safeAreaColumns+` FROM safe_areas `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query safe areas: %w", err)
	}
	defer rows.Close()

	var out []domain.SafeArea
	for rows.Next() {
		a, err := scanSafeArea(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanSafeArea(row scanner) (*domain.SafeArea, error) {
	var (
		a                    domain.SafeArea
		disasterID           sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&a.ID, &a.Name, &a.Location.Lat, &a.Location.Lng, &a.RadiusKm, &a.Description,
		&a.IsActive, &a.OwnerID, &disasterID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan safe area: %w", err)
	}
	a.DisasterID = intPtr(disasterID)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}
