package http

import (
	"net/http"
	"strings"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/escalation"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/couchcryptid/crowd-evac-service/internal/notify"
)

type testBroadcastRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type demoRequest struct {
	Location       geo.Point `json:"location"`
	LocationName   string    `json:"location_name"`
	Severity       int       `json:"severity"`
	DangerRadiusKm float64   `json:"danger_radius_km"`
}

type demoResponse struct {
	Disaster        *domain.Disaster `json:"disaster"`
	DevicesNotified int              `json:"devices_notified"`
}

func (s *Server) testBroadcast(w http.ResponseWriter, r *http.Request) {
	var req testBroadcastRequest
	if err := decodeJSON(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = "Test alert"
	}
	if strings.TrimSpace(req.Body) == "" {
		req.Body = "This is a test alert"
	}
	out := s.svc.Notifier.Broadcast(r.Context(), notify.Message{
		Kind:     domain.AlertKindTest,
		Title:    req.Title,
		Body:     req.Body,
		Data:     map[string]any{"type": "test"},
		Priority: notify.PriorityDefault,
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) submitExternalAlert(w http.ResponseWriter, r *http.Request) {
	var in domain.ExternalAlertInput
	if err := decodeJSON(r, w, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Ingestor.Submit(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) listExternalAlerts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := queryPage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	alerts, err := s.svc.Audit.ListExternalAlerts(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) triggerDemo(w http.ResponseWriter, r *http.Request) {
	var req demoRequest
	if err := decodeJSON(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, out, err := s.svc.Escalation.TriggerDemo(r.Context(), escalation.DemoRequest{
		Location:       req.Location,
		LocationName:   req.LocationName,
		Severity:       req.Severity,
		DangerRadiusKm: req.DangerRadiusKm,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, demoResponse{Disaster: d, DevicesNotified: out.Delivered})
}

func (s *Server) cancelDemo(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.svc.Escalation.CancelDemo(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) notificationLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := queryPage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logs, err := s.svc.Audit.ListAlertLogs(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
