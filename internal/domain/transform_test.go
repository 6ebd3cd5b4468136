package domain

import (
	"testing"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/geo"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var parseNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestParseRawEvent(t *testing.T) {
	raw := RawEvent{
		Value: []byte(`{
			"source": "Twitter",
			"source_id": "1789",
			"source_url": "https://x.com/i/1789",
			"text_content": "  Massive flooding near Adyar bridge ",
			"location_text": "Adyar, Chennai",
			"latitude": 13.0067,
			"longitude": 80.2573,
			"confidence_score": 0.82,
			"keywords_matched": ["flood", "bridge"]
		}`),
		Timestamp: parseNow.Add(-time.Minute),
	}

	got, err := ParseRawEvent(raw, parseNow)
	require.NoError(t, err)

	want := ExternalAlert{
		ID:           ExternalAlertID(SourceTwitter, "1789", "Massive flooding near Adyar bridge"),
		Source:       SourceTwitter,
		SourceID:     "1789",
		SourceURL:    "https://x.com/i/1789",
		Text:         "Massive flooding near Adyar bridge",
		LocationText: "Adyar, Chennai",
		Location:     &geo.Point{Lat: 13.0067, Lng: 80.2573},
		Confidence:   0.82,
		Keywords:     []string{"flood", "bridge"},
		CreatedAt:    parseNow.Add(-time.Minute),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseRawEvent mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.Broadcastable())
}

func TestParseRawEvent_InvalidJSON(t *testing.T) {
	_, err := ParseRawEvent(RawEvent{Value: []byte(`{not json`)}, parseNow)
	assert.ErrorContains(t, err, "parse raw event")
}

func TestExternalAlertInput_ToAlert(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name      string
		in        ExternalAlertInput
		wantField string
		check     func(t *testing.T, a ExternalAlert)
	}{
		{
			name: "defaults confidence",
			in:   ExternalAlertInput{Source: "news_rss", Text: "cyclone warning"},
			check: func(t *testing.T, a ExternalAlert) {
				assert.Equal(t, DefaultExternalConfidence, a.Confidence)
				assert.False(t, a.Broadcastable())
				assert.Nil(t, a.Location)
				assert.Equal(t, parseNow, a.CreatedAt)
			},
		},
		{
			name: "threshold is inclusive",
			in:   ExternalAlertInput{Source: "telegram", SourceID: "m1", Confidence: f(0.7)},
			check: func(t *testing.T, a ExternalAlert) {
				assert.True(t, a.Broadcastable())
			},
		},
		{name: "unknown source", in: ExternalAlertInput{Source: "myspace", Text: "x"}, wantField: "source"},
		{name: "confidence above one", in: ExternalAlertInput{Source: "twitter", Text: "x", Confidence: f(1.2)}, wantField: "confidence_score"},
		{name: "negative confidence", in: ExternalAlertInput{Source: "twitter", Text: "x", Confidence: f(-0.1)}, wantField: "confidence_score"},
		{name: "half a coordinate", in: ExternalAlertInput{Source: "twitter", Text: "x", Latitude: f(13)}, wantField: "location"},
		{name: "coordinate out of range", in: ExternalAlertInput{Source: "twitter", Text: "x", Latitude: f(13), Longitude: f(190)}, wantField: "location"},
		{name: "nothing to identify", in: ExternalAlertInput{Source: "youtube"}, wantField: "source_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := tt.in.ToAlert(parseNow)
			if tt.wantField != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantField, verr.Field)
				return
			}
			require.NoError(t, err)
			tt.check(t, a)
		})
	}
}
