// Package nats publishes notifications onto a NATS subject for an external
// push worker.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/nats-io/nats.go"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Publisher implements domain.NotificationGateway over core NATS.
type Publisher struct {
	conn    Conn
	subject string
	logger  *slog.Logger
}

// Connect dials the server with reconnect handling and returns the live
// connection. Callers own Close/Drain.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("crowd-evac-service"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats error", "error", err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// NewPublisher creates a gateway that publishes to subject.
func NewPublisher(conn Conn, subject string, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, subject: subject, logger: logger}
}

// Dispatch publishes n as one JSON message and waits for the server to
// acknowledge the flush. Every token counts as delivered on success.
func (p *Publisher) Dispatch(ctx context.Context, n domain.Notification) (int, error) {
	if len(n.Tokens) == 0 {
		return 0, nil
	}
	data, err := json.Marshal(n)
	if err != nil {
		return 0, fmt.Errorf("serialize notification: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return 0, fmt.Errorf("publish notification: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return 0, fmt.Errorf("flush notification: %w", err)
	}
	p.logger.Debug("notification published", "subject", p.subject, "recipients", len(n.Tokens))
	return len(n.Tokens), nil
}
