// Package verification implements the crowd verification state machine:
// eligibility of a response, the majority-of-three decision, and the trust
// penalty applied to reporters of false alarms.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/escalation"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/couchcryptid/crowd-evac-service/internal/keylock"
	"github.com/couchcryptid/crowd-evac-service/internal/notify"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	DecisionQuorum        = 3
	MajorityVotes         = 2
	SubmissionWindow      = 30 * time.Minute
	MaxVerifierDistanceKm = 10.0
	FalseAlarmPenalty     = 10
	FalseAlarmReason      = "False alarm report"
)

// Submission is one user's answer to "is this disaster real?".
type Submission struct {
	DisasterID int64
	UserID     string
	Confirmed  bool
	Location   *geo.Point
}

// Result is the state of the disaster after an accepted submission.
type Result struct {
	Verification       domain.VerificationResponse `json:"verification"`
	Status             domain.DisasterStatus       `json:"status"`
	AlertStatus        domain.AlertStatus          `json:"alert_status"`
	Decided            bool                        `json:"decided"`
	EmergencyTriggered bool                        `json:"emergency_triggered"`
	YesCount           int                         `json:"verification_count_yes"`
	NoCount            int                         `json:"verification_count_no"`
}

// CheckEligibility applies the stateless eligibility rules in order. The
// duplicate check needs the store and runs afterwards.
func CheckEligibility(d *domain.Disaster, sub Submission, now time.Time) error {
	if !acceptsResponses(d, sub.Confirmed) {
		return domain.Ineligible(domain.ReasonNotPending,
			fmt.Sprintf("disaster is %s and no longer accepts this response", d.Status))
	}
	if d.Age(now) >= SubmissionWindow {
		return domain.Ineligible(domain.ReasonExpired, "verification window has closed")
	}
	if sub.Location != nil {
		if dist := geo.DistanceKm(*sub.Location, d.Location); dist > MaxVerifierDistanceKm {
			return domain.Ineligible(domain.ReasonTooFar,
				fmt.Sprintf("you are %.1f km away; verifiers must be within %.0f km", dist, MaxVerifierDistanceKm))
		}
	}
	return nil
}

// acceptsResponses reports whether d is open for a response. After the
// majority decision only confirmations are taken, and only while the
// emergency quorum can still be reached.
func acceptsResponses(d *domain.Disaster, confirmed bool) bool {
	if d.AlertStatus != domain.AlertInitial {
		return false
	}
	switch d.Status {
	case domain.StatusPending:
		return true
	case domain.StatusVerified, domain.StatusFalseAlarm:
		return confirmed
	default:
		return false
	}
}

// ApplyResponse counts a response and runs the majority rule while d is
// still PENDING. It reports whether this response decided the disaster.
func ApplyResponse(d *domain.Disaster, confirmed bool) bool {
	if confirmed {
		d.YesCount++
	} else {
		d.NoCount++
	}
	if d.Status != domain.StatusPending || d.TotalResponses() < DecisionQuorum {
		return false
	}
	switch {
	case d.YesCount >= MajorityVotes:
		d.Status = domain.StatusVerified
	case d.NoCount >= MajorityVotes:
		d.Status = domain.StatusFalseAlarm
	default:
		return false
	}
	return true
}

// PenalizedScore subtracts the false alarm penalty, floored at zero.
func PenalizedScore(score int) int {
	return max(score-FalseAlarmPenalty, 0)
}

// Store runs a unit of work against a single disaster.
type Store interface {
	UpdateDisaster(ctx context.Context, id int64, fn func(tx domain.DisasterTx, d *domain.Disaster) error) error
}

// Escalator announces a committed escalation.
type Escalator interface {
	Announce(ctx context.Context, d domain.Disaster) notify.Outcome
}

// Service accepts verification submissions. All mutations of one disaster
// run under its key in locks, shared with the escalation controller.
type Service struct {
	store     Store
	escalator Escalator
	locks     *keylock.Map[int64]
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewService creates a verification Service.
func NewService(store Store, escalator Escalator, locks *keylock.Map[int64], clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:     store,
		escalator: escalator,
		locks:     locks,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Submit validates and records a response. The count update, majority
// decision, trust penalty and escalation commit atomically; the emergency
// broadcast follows the commit while the disaster lock is still held.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if sub.UserID == "" {
		return nil, domain.Invalid("user_id", "required")
	}
	if sub.Location != nil && !sub.Location.Valid() {
		return nil, domain.Invalid("location", "latitude/longitude out of range")
	}

	unlock := s.locks.Lock(sub.DisasterID)
	defer unlock()

	now := s.clock.Now()
	var (
		res       Result
		escalated *domain.Disaster
	)
	err := s.store.UpdateDisaster(ctx, sub.DisasterID, func(tx domain.DisasterTx, d *domain.Disaster) error {
		if err := CheckEligibility(d, sub, now); err != nil {
			return err
		}
		dup, err := tx.HasVerification(ctx, d.ID, sub.UserID)
		if err != nil {
			return err
		}
		if dup {
			return domain.Ineligible(domain.ReasonDuplicate, "you have already responded to this report")
		}

		v := domain.VerificationResponse{
			DisasterID:       d.ID,
			UserID:           sub.UserID,
			IsConfirmed:      sub.Confirmed,
			ReporterLocation: sub.Location,
			CreatedAt:        now,
		}
		if err := tx.InsertVerification(ctx, &v); err != nil {
			return err
		}

		decided := ApplyResponse(d, sub.Confirmed)
		if decided && d.Status == domain.StatusFalseAlarm {
			if err := penalize(ctx, tx, d, now); err != nil {
				return err
			}
		}
		triggered := escalation.Eligible(d)
		if triggered {
			escalation.Apply(d, now)
			snapshot := *d
			escalated = &snapshot
		}
		if err := tx.SaveDisaster(ctx, d); err != nil {
			return err
		}

		res = Result{
			Verification:       v,
			Status:             d.Status,
			AlertStatus:        d.AlertStatus,
			Decided:            decided,
			EmergencyTriggered: triggered,
			YesCount:           d.YesCount,
			NoCount:            d.NoCount,
		}
		return nil
	})
	if err != nil {
		s.metrics.Verifications.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	s.metrics.Verifications.WithLabelValues("accepted").Inc()
	if res.Decided {
		s.metrics.Decisions.WithLabelValues(res.Status.String()).Inc()
		s.logger.Info("disaster decided",
			"disaster_id", sub.DisasterID,
			"status", res.Status,
			"yes", res.YesCount,
			"no", res.NoCount,
		)
	}
	if escalated != nil {
		s.escalator.Announce(ctx, *escalated)
	}
	return &res, nil
}

func penalize(ctx context.Context, tx domain.DisasterTx, d *domain.Disaster, now time.Time) error {
	prev, err := tx.TrustScore(ctx, d.ReporterID)
	if err != nil {
		return err
	}
	id := d.ID
	return tx.AppendTrustEvent(ctx, &domain.TrustScoreEvent{
		UserID:        d.ReporterID,
		PreviousScore: prev,
		NewScore:      PenalizedScore(prev),
		Reason:        FalseAlarmReason,
		DisasterID:    &id,
		CreatedAt:     now,
	})
}

func outcomeLabel(err error) string {
	var inel *domain.IneligibleError
	switch {
	case errors.As(err, &inel):
		return inel.Reason
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
