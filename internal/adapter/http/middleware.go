package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/auth"
)

type principalKey struct{}

// principal returns the authenticated caller stored by requireRole.
func principal(ctx context.Context) auth.Principal {
	p, _ := ctx.Value(principalKey{}).(auth.Principal)
	return p
}

var (
	errMissingToken = errors.New("missing bearer token")
	errForbidden    = errors.New("insufficient role")
)

// requireRole returns a decorator admitting only bearer tokens of role.
func (s *Server) requireRole(role auth.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				s.writeError(w, r, errMissingToken)
				return
			}
			p, err := s.issuer.Verify(strings.TrimSpace(token))
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			if p.Role != role {
				s.writeError(w, r, errForbidden)
				return
			}
			next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
		}
	}
}

// handle registers h under pattern with request-duration instrumentation
// labelled by the route pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.HTTPRequestDuration.
			WithLabelValues(pattern, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	}))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
