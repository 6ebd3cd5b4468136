package http

import (
	"net/http"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/couchcryptid/crowd-evac-service/internal/reports"
	"github.com/couchcryptid/crowd-evac-service/internal/verification"
)

type verifyRequest struct {
	IsConfirmed *bool      `json:"is_confirmed"`
	Location    *geo.Point `json:"location"`
}

type trustResponse struct {
	UserID     string                   `json:"user_id"`
	TrustScore int                      `json:"trust_score"`
	CanReport  bool                     `json:"can_report"`
	History    []domain.TrustScoreEvent `json:"history"`
}

const trustHistoryLimit = 20

func (s *Server) createDisaster(w http.ResponseWriter, r *http.Request) {
	var in reports.Input
	if err := decodeJSON(r, w, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.svc.Reports.Create(r.Context(), principal(r.Context()).ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) activeDisasters(w http.ResponseWriter, r *http.Request) {
	ds, err := s.svc.Reports.Active(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) nearbyDisasters(w http.ResponseWriter, r *http.Request) {
	p, err := queryPoint(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	radius, err := queryRadius(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ds, err := s.svc.Reports.Nearby(r.Context(), p, radius)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) getDisaster(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.svc.Reports.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) verifyDisaster(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req verifyRequest
	if err := decodeJSON(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := requireField(req.IsConfirmed != nil, "is_confirmed"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Location != nil && !req.Location.Valid() {
		s.writeError(w, r, domain.Invalid("location", "latitude/longitude out of range"))
		return
	}

	res, err := s.svc.Verification.Submit(r.Context(), verification.Submission{
		DisasterID: id,
		UserID:     principal(r.Context()).ID,
		Confirmed:  *req.IsConfirmed,
		Location:   req.Location,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) resolveDisaster(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.svc.Escalation.Resolve(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("disaster resolved by authority", "disaster_id", id, "authority_id", principal(r.Context()).ID)
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) myTrust(w http.ResponseWriter, r *http.Request) {
	userID := principal(r.Context()).ID
	score, err := s.svc.Ledger.Score(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	history, err := s.svc.Ledger.History(r.Context(), userID, trustHistoryLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if history == nil {
		history = []domain.TrustScoreEvent{}
	}
	writeJSON(w, http.StatusOK, trustResponse{
		UserID:     userID,
		TrustScore: score,
		CanReport:  score >= domain.MinReporterTrustScore,
		History:    history,
	})
}
