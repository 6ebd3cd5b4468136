package domain

import (
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/geo"
)

// Defaults applied to newly submitted reports.
const (
	DefaultSeverity           = 5
	DefaultDangerRadiusKm     = 5.0
	DefaultEmergencyThreshold = 5
	InitialTrustScore         = 100
	MinReporterTrustScore     = 20
)

// Disaster is a crowd-verified disaster report. Counters, Status and
// AlertStatus form one aggregate that is only mutated under the
// per-disaster lock.
type Disaster struct {
	ID                 int64          `json:"id"`
	ReporterID         string         `json:"reporter_id"`
	Location           geo.Point      `json:"location"`
	LocationName       string         `json:"location_name,omitempty"`
	Description        string         `json:"description,omitempty"`
	MediaURL           string         `json:"media_url,omitempty"`
	Severity           int            `json:"severity"`
	HazardDetected     bool           `json:"hazard_detected"`
	Status             DisasterStatus `json:"status"`
	AlertStatus        AlertStatus    `json:"alert_status"`
	YesCount           int            `json:"verification_count_yes"`
	NoCount            int            `json:"verification_count_no"`
	DangerRadiusKm     float64        `json:"danger_radius_km"`
	EmergencyThreshold int            `json:"emergency_confirmation_threshold"`
	IsDemo             bool           `json:"is_demo"`
	CreatedAt          time.Time      `json:"created_at"`
	EscalatedAt        *time.Time     `json:"escalated_at,omitempty"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
}

// TotalResponses is the number of accepted verification responses.
func (d *Disaster) TotalResponses() int { return d.YesCount + d.NoCount }

// Age is the time elapsed since the report was created.
func (d *Disaster) Age(now time.Time) time.Duration { return now.Sub(d.CreatedAt) }

// VerificationResponse is one user's immutable confirmation or denial.
type VerificationResponse struct {
	ID               int64      `json:"id"`
	DisasterID       int64      `json:"disaster_id"`
	UserID           string     `json:"user_id"`
	IsConfirmed      bool       `json:"is_confirmed"`
	ReporterLocation *geo.Point `json:"reporter_location,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// TrustScoreEvent is an append-only trust ledger entry.
type TrustScoreEvent struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	PreviousScore int       `json:"previous_score"`
	NewScore      int       `json:"new_score"`
	Reason        string    `json:"reason"`
	DisasterID    *int64    `json:"disaster_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SafeArea is an authority-designated evacuation target.
type SafeArea struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    geo.Point `json:"location"`
	RadiusKm    float64   `json:"radius_km"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	OwnerID     string    `json:"owner_authority_id"`
	DisasterID  *int64    `json:"disaster_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LocationSample is an anonymized device position ping.
type LocationSample struct {
	ID         int64     `json:"id"`
	DeviceHash string    `json:"-"`
	Location   geo.Point `json:"location"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EvacuationAlert records an automatic crowd-evacuation broadcast for throttling.
type EvacuationAlert struct {
	ID               int64     `json:"id"`
	DisasterID       int64     `json:"disaster_id"`
	AreaLocation     geo.Point `json:"area_location"`
	DirectionDegrees float64   `json:"direction_degrees"`
	SentAt           time.Time `json:"sent_at"`
}

// Device is a push-notification registration.
type Device struct {
	DeviceID  string    `json:"device_id"`
	PushToken string    `json:"push_token"`
	Platform  string    `json:"platform,omitempty"`
	IsActive  bool      `json:"is_active"`
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
}

// DeviceStats summarizes the push registry.
type DeviceStats struct {
	Total   int `json:"total_devices"`
	Active  int `json:"active_devices"`
	Android int `json:"android_devices"`
	IOS     int `json:"ios_devices"`
}

// AlertKind classifies dispatched notifications.
type AlertKind string

const (
	AlertKindEmergency       AlertKind = "emergency"
	AlertKindVerifyRequest   AlertKind = "verification_request"
	AlertKindCrowdEvacuation AlertKind = "crowd_evacuation"
	AlertKindExternal        AlertKind = "external_alert"
	AlertKindTest            AlertKind = "test_broadcast"
)

// AlertLog is the audit row written for every dispatch attempt.
type AlertLog struct {
	ID         int64     `json:"id"`
	Kind       AlertKind `json:"kind"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	DisasterID *int64    `json:"disaster_id,omitempty"`
	Recipients int       `json:"recipients"`
	Delivered  int       `json:"delivered"`
	CreatedAt  time.Time `json:"created_at"`
}
