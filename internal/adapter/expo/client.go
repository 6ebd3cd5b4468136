package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
)

const (
	// DefaultPushURL is the Expo push service send endpoint.
	DefaultPushURL = "https://exp.host/--/api/v2/push/send"

	// Expo accepts at most 100 messages per request.
	maxChunkSize = 100

	androidChannel = "disaster-alerts"
)

// Client implements domain.NotificationGateway using the Expo push API.
type Client struct {
	httpClient *http.Client
	pushURL    string
	logger     *slog.Logger
}

// NewClient creates an Expo push client.
func NewClient(pushURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if pushURL == "" {
		pushURL = DefaultPushURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pushURL: pushURL,
		logger:  logger,
	}
}

// Dispatch sends n to every token in chunks and returns the number of
// tickets Expo accepted. A failed chunk is logged and the remaining chunks are
// still attempted; the first chunk error is returned alongside the count.
func (c *Client) Dispatch(ctx context.Context, n domain.Notification) (int, error) {
	var (
		delivered int
		firstErr  error
	)
	for start := 0; start < len(n.Tokens); start += maxChunkSize {
		end := min(start+maxChunkSize, len(n.Tokens))
		ok, err := c.sendChunk(ctx, buildMessages(n, n.Tokens[start:end]))
		delivered += ok
		if err != nil {
			c.logger.Warn("expo push chunk failed", "error", err, "chunk_start", start, "chunk_size", end-start)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return delivered, firstErr
}

func buildMessages(n domain.Notification, tokens []string) []message {
	msgs := make([]message, len(tokens))
	for i, token := range tokens {
		msgs[i] = message{
			To:        token,
			Sound:     "default",
			Title:     n.Title,
			Body:      n.Body,
			Priority:  n.Priority,
			ChannelID: androidChannel,
			Data:      n.Data,
		}
	}
	return msgs
}

func (c *Client) sendChunk(ctx context.Context, msgs []message) (int, error) {
	payload, err := json.Marshal(msgs)
	if err != nil {
		return 0, fmt.Errorf("encode push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pushURL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("expo push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("expo API error: status %d: %s", resp.StatusCode, body)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	accepted := 0
	for i, ticket := range out.Data {
		if ticket.Status == "ok" {
			accepted++
			continue
		}
		to := ""
		if i < len(msgs) {
			to = msgs[i].To
		}
		c.logger.Debug("expo push ticket rejected", "token", to, "message", ticket.Message, "error", ticket.Details.Error)
	}
	return accepted, nil
}

// Expo push API payloads.

type message struct {
	To        string         `json:"to"`
	Sound     string         `json:"sound"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Priority  string         `json:"priority,omitempty"`
	ChannelID string         `json:"channelId"`
	Data      map[string]any `json:"data,omitempty"`
}

type response struct {
	Data []ticket `json:"data"`
}

type ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}
