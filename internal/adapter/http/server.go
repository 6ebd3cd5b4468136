// Package http exposes the service over a JSON HTTP API, plus health,
// readiness and Prometheus endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/auth"
	"github.com/couchcryptid/crowd-evac-service/internal/devices"
	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/escalation"
	"github.com/couchcryptid/crowd-evac-service/internal/evacuation"
	"github.com/couchcryptid/crowd-evac-service/internal/location"
	"github.com/couchcryptid/crowd-evac-service/internal/notify"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
	"github.com/couchcryptid/crowd-evac-service/internal/pipeline"
	"github.com/couchcryptid/crowd-evac-service/internal/reports"
	"github.com/couchcryptid/crowd-evac-service/internal/verification"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuditStore lists the admin audit trails.
type AuditStore interface {
	ListExternalAlerts(ctx context.Context, limit, offset int) ([]domain.ExternalAlert, error)
	ListAlertLogs(ctx context.Context, limit, offset int) ([]domain.AlertLog, error)
}

// Services are the application services the API routes to.
type Services struct {
	Reports      *reports.Service
	Verification *verification.Service
	Ledger       *verification.Ledger
	Escalation   *escalation.Controller
	Advisor      *evacuation.Advisor
	Alerter      *evacuation.CrowdAlerter
	SafeAreas    *evacuation.SafeAreas
	Tracker      *location.Tracker
	Devices      *devices.Registry
	Ingestor     *pipeline.Ingestor
	Notifier     *notify.Dispatcher
	Audit        AuditStore
}

// Server exposes the API and the health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        Services
	issuer     *auth.Issuer
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer creates an HTTP server with every API route registered.
func NewServer(addr string, svc Services, issuer *auth.Issuer, ready sharedobs.ReadinessChecker, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:     svc,
		issuer:  issuer,
		logger:  logger,
		metrics: metrics,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	s.routes(mux)
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	user := s.requireRole(auth.RoleUser)
	authority := s.requireRole(auth.RoleAuthority)
	service := s.requireRole(auth.RoleService)

	// Disasters and verification.
	s.handle(mux, "POST /disasters", user(s.createDisaster))
	s.handle(mux, "GET /disasters/active", s.activeDisasters)
	s.handle(mux, "GET /disasters/nearby", s.nearbyDisasters)
	s.handle(mux, "GET /disasters/{id}", s.getDisaster)
	s.handle(mux, "POST /disasters/{id}/verify", user(s.verifyDisaster))
	s.handle(mux, "POST /disasters/{id}/resolve", authority(s.resolveDisaster))
	s.handle(mux, "GET /users/me/trust", user(s.myTrust))

	// Push registry and anonymized location.
	s.handle(mux, "POST /devices/register", s.registerDevice)
	s.handle(mux, "POST /devices/heartbeat", s.deviceHeartbeat)
	s.handle(mux, "DELETE /devices/{device_id}", s.unregisterDevice)
	s.handle(mux, "GET /devices/stats", service(s.deviceStats))
	s.handle(mux, "POST /devices/location", s.devicePing)

	// Evacuation guidance.
	s.handle(mux, "GET /evacuation/direction", s.evacuationDirection)
	s.handle(mux, "POST /evacuation/trigger-crowd-alert", service(s.triggerCrowdAlert))

	s.handle(mux, "POST /safe-areas", authority(s.createSafeArea))
	s.handle(mux, "GET /safe-areas/mine", authority(s.mySafeAreas))
	s.handle(mux, "GET /safe-areas/nearby", s.nearbySafeAreas)
	s.handle(mux, "GET /safe-areas/{id}", s.getSafeArea)
	s.handle(mux, "PUT /safe-areas/{id}", authority(s.updateSafeArea))
	s.handle(mux, "DELETE /safe-areas/{id}", authority(s.deleteSafeArea))

	// Danger zones.
	s.handle(mux, "POST /locations/update", s.updateLocation)
	s.handle(mux, "GET /locations/check-radius/{id}", s.checkRadius)
	s.handle(mux, "GET /locations/emergency-zones", s.emergencyZones)

	// Operations.
	s.handle(mux, "POST /admin/test-broadcast", service(s.testBroadcast))
	s.handle(mux, "POST /admin/external-alerts", service(s.submitExternalAlert))
	s.handle(mux, "GET /admin/external-alerts", service(s.listExternalAlerts))
	s.handle(mux, "POST /admin/demo-emergency", service(s.triggerDemo))
	s.handle(mux, "DELETE /admin/demo-emergency/{id}", service(s.cancelDemo))
	s.handle(mux, "GET /admin/notification-logs", service(s.notificationLogs))
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
