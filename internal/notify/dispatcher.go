// Package notify fans notifications out to registered devices through a
// pluggable gateway and records every attempt in the alert log.
package notify

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Priorities understood by push transports.
const (
	PriorityHigh    = "high"
	PriorityDefault = "default"
)

// Recipients resolves the push tokens of reachable devices.
type Recipients interface {
	ActivePushTokens(ctx context.Context, limit int) ([]string, error)
}

// LogStore persists dispatch audit rows.
type LogStore interface {
	InsertAlertLog(ctx context.Context, l *domain.AlertLog) error
}

// Message describes one broadcast. Limit caps the recipient count; zero
// means every active device.
type Message struct {
	Kind       domain.AlertKind
	Title      string
	Body       string
	Data       map[string]any
	Priority   string
	DisasterID *int64
	Limit      int
}

// Outcome reports how many devices were targeted and accepted by the gateway.
type Outcome struct {
	Recipients int `json:"recipients"`
	Delivered  int `json:"delivered"`
}

// Dispatcher delivers messages best-effort. It never returns gateway or
// logging failures: delivery is a side channel to state changes.
type Dispatcher struct {
	gateway    domain.NotificationGateway
	recipients Recipients
	logs       LogStore
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewDispatcher wires a gateway to the device registry and alert log.
func NewDispatcher(gateway domain.NotificationGateway, recipients Recipients, logs LogStore, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		gateway:    gateway,
		recipients: recipients,
		logs:       logs,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Broadcast sends msg to active devices.
func (d *Dispatcher) Broadcast(ctx context.Context, msg Message) Outcome {
	tokens, err := d.recipients.ActivePushTokens(ctx, msg.Limit)
	if err != nil {
		d.logger.Error("resolve notification recipients failed", "kind", msg.Kind, "error", err)
		d.metrics.Notifications.WithLabelValues(string(msg.Kind), "failed").Inc()
		return Outcome{}
	}
	return d.Send(ctx, tokens, msg)
}

// Send delivers msg to an explicit token list. Every call is audited, even
// when there is nobody to deliver to.
func (d *Dispatcher) Send(ctx context.Context, tokens []string, msg Message) Outcome {
	out := Outcome{Recipients: len(tokens)}
	if len(tokens) == 0 {
		d.logger.Info("no notification recipients", "kind", msg.Kind)
		d.metrics.Notifications.WithLabelValues(string(msg.Kind), "no_recipients").Inc()
	} else {
		out.Delivered = d.dispatch(ctx, tokens, msg)
	}

	entry := &domain.AlertLog{
		Kind:       msg.Kind,
		Title:      msg.Title,
		Body:       msg.Body,
		DisasterID: msg.DisasterID,
		Recipients: out.Recipients,
		Delivered:  out.Delivered,
		CreatedAt:  d.clock.Now(),
	}
	if err := d.logs.InsertAlertLog(ctx, entry); err != nil {
		d.logger.Warn("write alert log failed", "kind", msg.Kind, "error", err)
	}
	return out
}

// dispatch hands msg to the gateway and returns the delivered count. Gateway
// errors are logged and count as zero deliveries.
func (d *Dispatcher) dispatch(ctx context.Context, tokens []string, msg Message) int {
	priority := msg.Priority
	if priority == "" {
		priority = PriorityDefault
	}
	delivered, err := d.gateway.Dispatch(ctx, domain.Notification{
		Tokens:   tokens,
		Title:    msg.Title,
		Body:     msg.Body,
		Data:     msg.Data,
		Priority: priority,
	})
	if err != nil {
		d.logger.Warn("notification dispatch failed, continuing",
			"kind", msg.Kind, "recipients", len(tokens), "error", err)
		d.metrics.Notifications.WithLabelValues(string(msg.Kind), "failed").Inc()
		return 0
	}
	d.metrics.Notifications.WithLabelValues(string(msg.Kind), "delivered").Inc()
	return delivered
}
