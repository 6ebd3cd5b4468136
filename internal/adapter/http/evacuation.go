package http

import (
	"net/http"

	"github.com/couchcryptid/crowd-evac-service/internal/evacuation"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/couchcryptid/crowd-evac-service/internal/location"
)

type crowdAlertRequest struct {
	DisasterID int64     `json:"disaster_id"`
	Location   geo.Point `json:"location"`
}

func (s *Server) evacuationDirection(w http.ResponseWriter, r *http.Request) {
	p, err := queryPoint(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	disasterID, err := queryInt64(r, "disaster_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.svc.Advisor.Direction(r.Context(), p, disasterID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) triggerCrowdAlert(w http.ResponseWriter, r *http.Request) {
	var req crowdAlertRequest
	if err := decodeJSON(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := requireField(req.DisasterID > 0, "disaster_id"); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Alerter.Trigger(r.Context(), req.DisasterID, req.Location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) createSafeArea(w http.ResponseWriter, r *http.Request) {
	var in evacuation.SafeAreaInput
	if err := decodeJSON(r, w, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	area, err := s.svc.SafeAreas.Create(r.Context(), principal(r.Context()).ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, area)
}

func (s *Server) mySafeAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := s.svc.SafeAreas.Mine(r.Context(), principal(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, areas)
}

func (s *Server) nearbySafeAreas(w http.ResponseWriter, r *http.Request) {
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
	areas, err := s.svc.Advisor.NearbySafeAreas(r.Context(), p, radius)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, areas)
}

func (s *Server) getSafeArea(w http.ResponseWriter, r *http.Request) {
	area, err := s.svc.SafeAreas.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, area)
}

func (s *Server) updateSafeArea(w http.ResponseWriter, r *http.Request) {
	var patch evacuation.SafeAreaPatch
	if err := decodeJSON(r, w, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	area, err := s.svc.SafeAreas.Update(r.Context(), r.PathValue("id"), principal(r.Context()).ID, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, area)
}

func (s *Server) deleteSafeArea(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.SafeAreas.Deactivate(r.Context(), r.PathValue("id"), principal(r.Context()).ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateLocation(w http.ResponseWriter, r *http.Request) {
	var u location.Update
	if err := decodeJSON(r, w, &u); err != nil {
		s.writeError(w, r, err)
		return
	}
	check, err := s.svc.Tracker.UpdateLocation(r.Context(), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) checkRadius(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := queryPoint(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	check, err := s.svc.Tracker.CheckRadius(r.Context(), id, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) emergencyZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.svc.Tracker.EmergencyZones(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, zones)
}
