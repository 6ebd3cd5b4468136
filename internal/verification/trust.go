package verification

import (
	"context"
	"fmt"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
)

// LedgerStore reads the append-only trust ledger.
type LedgerStore interface {
	TrustScore(ctx context.Context, userID string) (int, error)
	TrustHistory(ctx context.Context, userID string, limit int) ([]domain.TrustScoreEvent, error)
}

// Ledger answers trust questions about users.
type Ledger struct {
	store LedgerStore
}

// NewLedger creates a Ledger.
func NewLedger(store LedgerStore) *Ledger {
	return &Ledger{store: store}
}

// Score returns the live trust score of userID.
func (l *Ledger) Score(ctx context.Context, userID string) (int, error) {
	return l.store.TrustScore(ctx, userID)
}

// History returns the most recent trust events for userID, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]domain.TrustScoreEvent, error) {
	return l.store.TrustHistory(ctx, userID, limit)
}

// CanReport rejects reporters whose score fell below the reporting floor.
func (l *Ledger) CanReport(ctx context.Context, userID string) error {
	score, err := l.store.TrustScore(ctx, userID)
	if err != nil {
		return err
	}
	if score < domain.MinReporterTrustScore {
		return domain.Ineligible(domain.ReasonLowTrust,
			fmt.Sprintf("trust score %d is below the reporting minimum of %d", score, domain.MinReporterTrustScore))
	}
	return nil
}
