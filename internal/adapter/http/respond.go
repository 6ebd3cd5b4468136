package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/couchcryptid/crowd-evac-service/internal/auth"
	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/geo"
)

const (
	maxBodyBytes     = 1 << 20
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type errorBody struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

// writeError maps service errors onto status codes. Unknown errors are logged
// and hidden behind a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		ineligible *domain.IneligibleError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: validation.Error(), Field: validation.Field})
	case errors.As(err, &ineligible):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ineligible.Message, Reason: ineligible.Reason})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, errMissingToken), errors.Is(err, auth.ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or missing token"})
	case errors.Is(err, errForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, w http.ResponseWriter, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Invalid("body", "malformed JSON: %v", err)
	}
	return nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// queryPoint reads the mandatory lat and lng query parameters.
func queryPoint(r *http.Request) (geo.Point, error) {
	lat, err := queryFloat(r, "lat")
	if err != nil {
		return geo.Point{}, err
	}
	lng, err := queryFloat(r, "lng")
	if err != nil {
		return geo.Point{}, err
	}
	if lat == nil || lng == nil {
		return geo.Point{}, domain.Invalid("location", "lat and lng are required")
	}
	return geo.Point{Lat: *lat, Lng: *lng}, nil
}

func queryFloat(r *http.Request, key string) (*float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.Invalid(key, "must be a number")
	}
	return &v, nil
}

func queryRadius(r *http.Request) (float64, error) {
	v, err := queryFloat(r, "radius_km")
	if err != nil || v == nil {
		return 0, err
	}
	if *v < 0 {
		return 0, domain.Invalid("radius_km", "must not be negative")
	}
	return *v, nil
}

func queryInt64(r *http.Request, key string) (*int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domain.Invalid(key, "must be an integer")
	}
	return &v, nil
}

// queryPage reads limit/offset paging parameters.
func queryPage(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultPageLimit, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxPageLimit {
			return 0, 0, domain.Invalid("limit", "must be between 1 and %d", maxPageLimit)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, domain.Invalid("offset", "must not be negative")
		}
	}
	return limit, offset, nil
}

func requireField(ok bool, field string) error {
	if ok {
		return nil
	}
	return domain.Invalid(field, "required")
}
