package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/geo"
)

// DefaultExternalConfidence applies when the crawler omits a score.
const DefaultExternalConfidence = 0.5

// ExternalAlertInput is the JSON document the social crawler publishes.
type ExternalAlertInput struct {
	Source       string   `json:"source"`
	SourceID     string   `json:"source_id"`
	SourceURL    string   `json:"source_url"`
	Text         string   `json:"text_content"`
	MediaURL     string   `json:"media_url"`
	LocationText string   `json:"location_text"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Confidence   *float64 `json:"confidence_score"`
	Keywords     []string `json:"keywords_matched"`
}

// ParseRawEvent deserializes a crawler message into an ExternalAlert. The
// message timestamp becomes the alert's creation time when present.
func ParseRawEvent(raw RawEvent, now time.Time) (ExternalAlert, error) {
	var in ExternalAlertInput
	if err := json.Unmarshal(raw.Value, &in); err != nil {
		return ExternalAlert{}, fmt.Errorf("parse raw event: %w", err)
	}
	if !raw.Timestamp.IsZero() {
		now = raw.Timestamp
	}
	return in.ToAlert(now)
}

// ToAlert validates the input and normalizes it into an unprocessed alert.
func (in ExternalAlertInput) ToAlert(now time.Time) (ExternalAlert, error) {
	source := ExternalSource(strings.ToLower(strings.TrimSpace(in.Source)))
	if !source.Valid() {
		return ExternalAlert{}, Invalid("source", "unknown source %q", in.Source)
	}

	confidence := DefaultExternalConfidence
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return ExternalAlert{}, Invalid("confidence_score", "must be between 0 and 1")
	}

	var loc *geo.Point
	switch {
	case in.Latitude != nil && in.Longitude != nil:
		p := geo.Point{Lat: *in.Latitude, Lng: *in.Longitude}
		if !p.Valid() {
			return ExternalAlert{}, Invalid("location", "latitude/longitude out of range")
		}
		loc = &p
	case in.Latitude != nil || in.Longitude != nil:
		return ExternalAlert{}, Invalid("location", "latitude and longitude must be given together")
	}

	text := strings.TrimSpace(in.Text)
	sourceID := strings.TrimSpace(in.SourceID)
	if sourceID == "" && text == "" {
		return ExternalAlert{}, Invalid("source_id", "source_id or text_content is required")
	}

	return ExternalAlert{
		ID:           ExternalAlertID(source, sourceID, text),
		Source:       source,
		SourceID:     sourceID,
		SourceURL:    in.SourceURL,
		Text:         text,
		MediaURL:     in.MediaURL,
		LocationText: strings.TrimSpace(in.LocationText),
		Location:     loc,
		Confidence:   confidence,
		Keywords:     in.Keywords,
		CreatedAt:    now.UTC(),
	}, nil
}

// Broadcastable reports whether the alert is confident enough to push to
// every device.
func (a ExternalAlert) Broadcastable() bool {
	return a.Confidence >= ExternalBroadcastConfidence
}
