package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/notify"
	"github.com/jonboulle/clockwork"
)

// IngestStore persists external alerts.
type IngestStore interface {
	InsertExternalAlert(ctx context.Context, a *domain.ExternalAlert) (bool, error)
	MarkExternalAlertProcessed(ctx context.Context, id string) error
}

// Broadcaster delivers a message to every reachable device.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg notify.Message) notify.Outcome
}

// IngestResult describes what happened to one alert.
type IngestResult struct {
	ID              string `json:"id"`
	Duplicate       bool   `json:"duplicate"`
	Broadcast       bool   `json:"broadcast"`
	DevicesNotified int    `json:"devices_notified"`
}

// Ingestor stores external alerts and broadcasts the confident ones. Replays
// of an alert already stored are ignored, so a retried batch never notifies
// twice.
type Ingestor struct {
	store       IngestStore
	broadcaster Broadcaster
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(store IngestStore, broadcaster Broadcaster, clock clockwork.Clock, logger *slog.Logger) *Ingestor {
	return &Ingestor{store: store, broadcaster: broadcaster, clock: clock, logger: logger}
}

// Submit validates a crawler document received outside Kafka and ingests it.
func (i *Ingestor) Submit(ctx context.Context, in domain.ExternalAlertInput) (IngestResult, error) {
	a, err := in.ToAlert(i.clock.Now())
	if err != nil {
		return IngestResult{}, err
	}
	return i.Ingest(ctx, a)
}

// Ingest stores a and, when it is new and confident enough, broadcasts it
// and marks it processed.
func (i *Ingestor) Ingest(ctx context.Context, a domain.ExternalAlert) (IngestResult, error) {
	res := IngestResult{ID: a.ID}
	inserted, err := i.store.InsertExternalAlert(ctx, &a)
	if err != nil {
		return res, err
	}
	if !inserted {
		i.logger.Debug("external alert replayed, skipping", "alert_id", a.ID, "source", a.Source)
		res.Duplicate = true
		return res, nil
	}
	if !a.Broadcastable() {
		return res, nil
	}

	out := i.broadcaster.Broadcast(ctx, alertMessage(a))
	res.Broadcast = true
	res.DevicesNotified = out.Delivered
	if err := i.store.MarkExternalAlertProcessed(ctx, a.ID); err != nil {
		i.logger.Warn("mark external alert processed failed", "alert_id", a.ID, "error", err)
	}
	i.logger.Info("external alert broadcast",
		"alert_id", a.ID,
		"source", a.Source,
		"confidence", a.Confidence,
		"devices", out.Delivered,
	)
	return res, nil
}

// LoadBatch implements BatchLoader.
func (i *Ingestor) LoadBatch(ctx context.Context, alerts []domain.ExternalAlert) error {
	for _, a := range alerts {
		if _, err := i.Ingest(ctx, a); err != nil {
			return fmt.Errorf("ingest alert %s: %w", a.ID, err)
		}
	}
	return nil
}

func alertMessage(a domain.ExternalAlert) notify.Message {
	place := a.LocationText
	if place == "" {
		place = "your area"
	}
	data := map[string]any{
		"type":       "external_alert",
		"alert_id":   a.ID,
		"source":     string(a.Source),
		"source_url": a.SourceURL,
		"confidence": a.Confidence,
	}
	if a.Location != nil {
		data["latitude"] = a.Location.Lat
		data["longitude"] = a.Location.Lng
	}
	return notify.Message{
		Kind:     domain.AlertKindExternal,
		Title:    "External Alert Detected",
		Body:     fmt.Sprintf("Potential disaster reported near %s. Source: %s", place, a.Source),
		Priority: notify.PriorityHigh,
		Data:     data,
	}
}
