package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
)

// TrustScore returns the user's live score: the newest ledger entry, or the
// initial score when the user has none.
func (s *Store) TrustScore(ctx context.Context, userID string) (int, error) {
	return trustScore(ctx, s.db, userID)
}

// TrustHistory lists a user's ledger entries, newest first.
func (s *Store) TrustHistory(ctx context.Context, userID string, limit int) ([]domain.TrustScoreEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, previous_score, new_score, reason, disaster_id, created_at
		FROM trust_score_events WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trust history: %w", err)
	}
	defer rows.Close()

	var out []domain.TrustScoreEvent
	for rows.Next() {
		var (
			e          domain.TrustScoreEvent
			disasterID sql.NullInt64
			createdAt  int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.PreviousScore, &e.NewScore, &e.Reason, &disasterID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan trust event: %w", err)
		}
		e.DisasterID = intPtr(disasterID)
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func trustScore(ctx context.Context, q queryer, userID string) (int, error) {
	var score int
	err := q.QueryRowContext(ctx,
		`SELECT new_score FROM trust_score_events WHERE user_id = ? ORDER BY id DESC LIMIT 1`, userID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InitialTrustScore, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query trust score: %w", err)
	}
	return score, nil
}

func appendTrustEvent(ctx context.Context, q queryer, e *domain.TrustScoreEvent) error {
	res, err := q.ExecContext(ctx, `INSERT INTO trust_score_events
		(user_id, previous_score, new_score, reason, disaster_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.UserID, e.PreviousScore, e.NewScore, e.Reason, nullInt(e.DisasterID), toMillis(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert trust event: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("trust event id: %w", err)
	}
	return nil
}
