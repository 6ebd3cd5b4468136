package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
)

// Severity bands returned by the classifier, mapped onto the 1-10 scale.
var severityLevels = map[string]int{
	"LOW":      3,
	"MEDIUM":   5,
	"HIGH":     7,
	"CRITICAL": 9,
}

// Client implements domain.MediaClassifier against the hazard classification API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a classifier client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		metrics: metrics,
	}
}

// Analyze submits the media URL for classification.
func (c *Client) Analyze(ctx context.Context, mediaURL string) (domain.Classification, error) {
	start := time.Now()
	result, err := c.doRequest(ctx, mediaURL)
	c.metrics.ClassifierAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ClassifierRequests.WithLabelValues("error").Inc()
		return domain.Classification{}, err
	}
	c.metrics.ClassifierRequests.WithLabelValues("success").Inc()
	c.logger.Debug("media classified",
		"media_url", mediaURL,
		"severity", result.Severity,
		"hazard_detected", result.HazardDetected,
	)
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, mediaURL string) (domain.Classification, error) {
	payload, err := json.Marshal(request{MediaURL: mediaURL})
	if err != nil {
		return domain.Classification{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.Classification{}, fmt.Errorf("classifier API error: status %d: %s", resp.StatusCode, body)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Classification{}, fmt.Errorf("decode response: %w", err)
	}

	severity, ok := severityLevels[strings.ToUpper(out.Severity)]
	if !ok {
		severity = domain.DefaultSeverity
	}
	return domain.Classification{
		Severity:       severity,
		HazardDetected: out.IsDisaster,
	}, nil
}

// Classifier API payloads.

type request struct {
	MediaURL string `json:"media_url"`
}

type response struct {
	IsDisaster bool    `json:"is_disaster"`
	Type       string  `json:"type"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
}
