package http

import (
	"net/http"

	"github.com/couchcryptid/crowd-evac-service/internal/devices"
	"github.com/couchcryptid/crowd-evac-service/internal/location"
)

type heartbeatRequest struct {
	DeviceID string `json:"device_id"`
}

func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request) {
	var reg devices.Registration
	if err := decodeJSON(r, w, &reg); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.svc.Devices.Register(r.Context(), reg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deviceHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeJSON(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.Devices.Heartbeat(r.Context(), req.DeviceID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) unregisterDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Devices.Unregister(r.Context(), r.PathValue("device_id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deviceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Devices.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) devicePing(w http.ResponseWriter, r *http.Request) {
	var ping location.Ping
	if err := decodeJSON(r, w, &ping); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.Tracker.Ingest(r.Context(), ping); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
