package domain

import "context"

// Classification is the media classifier verdict for a report's attachment.
type Classification struct {
	Severity       int  `json:"severity"`
	HazardDetected bool `json:"hazard_detected"`
}

// MediaClassifier scores report media. Implementations may be remote and slow;
// callers fall back to DefaultSeverity on error.
type MediaClassifier interface {
	Analyze(ctx context.Context, mediaURL string) (Classification, error)
}

// Notification is one push message fanned out to a set of device tokens.
type Notification struct {
	Tokens   []string       `json:"tokens"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	Priority string         `json:"priority"`
}

// NotificationGateway delivers notifications best-effort and reports how
// many recipients were accepted by the transport.
type NotificationGateway interface {
	Dispatch(ctx context.Context, n Notification) (int, error)
}

// DisasterTx is the unit of work handed to callers that mutate a single
// disaster aggregate. Every read and write issued through it commits or rolls
// back together.
type DisasterTx interface {
	HasVerification(ctx context.Context, disasterID int64, userID string) (bool, error)
	InsertVerification(ctx context.Context, v *VerificationResponse) error
	SaveDisaster(ctx context.Context, d *Disaster) error
	TrustScore(ctx context.Context, userID string) (int, error)
	AppendTrustEvent(ctx context.Context, e *TrustScoreEvent) error
}
