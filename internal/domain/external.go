package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/geo"
)

// External alerts at or above this confidence are broadcast to every device.
const ExternalBroadcastConfidence = 0.7

// ExternalSource names the crawler feed that produced an alert.
type ExternalSource string

const (
	SourceTwitter  ExternalSource = "twitter"
	SourceYouTube  ExternalSource = "youtube"
	SourceNewsRSS  ExternalSource = "news_rss"
	SourceTelegram ExternalSource = "telegram"
)

// Valid reports whether s is a known feed.
func (s ExternalSource) Valid() bool {
	switch s {
	case SourceTwitter, SourceYouTube, SourceNewsRSS, SourceTelegram:
		return true
	default:
		return false
	}
}

// RawEvent is an unprocessed message from the crawler topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ExternalAlert is a crawler-detected disaster mention.
type ExternalAlert struct {
	ID           string         `json:"id"`
	Source       ExternalSource `json:"source"`
	SourceID     string         `json:"source_id,omitempty"`
	SourceURL    string         `json:"source_url,omitempty"`
	Text         string         `json:"text_content,omitempty"`
	MediaURL     string         `json:"media_url,omitempty"`
	LocationText string         `json:"location_text,omitempty"`
	Location     *geo.Point     `json:"location,omitempty"`
	Confidence   float64        `json:"confidence_score"`
	Keywords     []string       `json:"keywords_matched,omitempty"`
	Processed    bool           `json:"is_processed"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ExternalAlertID derives a deterministic identifier so crawler replays
// collapse onto the same row. Alerts without a source id hash their content.
func ExternalAlertID(source ExternalSource, sourceID, text string) string {
	key := sourceID
	if key == "" {
		key = "text:" + text
	}
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s", source, key))
	return hex.EncodeToString(h[:16])
}
