// Package pipeline consumes crawler alerts in batches: extract raw messages,
// transform them into external alerts, and load them through the ingestor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw event into an external alert.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.ExternalAlert, error)
}

// BatchLoader stores and announces a batch of alerts. It must be idempotent:
// after a failure the same alerts are loaded again until the call succeeds
// or the pipeline stops.
type BatchLoader interface {
	LoadBatch(ctx context.Context, alerts []domain.ExternalAlert) error
}

// Pipeline drains crawler alerts from an extractor into a loader. Offsets
// are committed only after the alerts they carry are loaded; messages that
// cannot become alerts are committed straight away so they are never
// redelivered.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	batchSize   int
	loadedOnce  atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has loaded a batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.loadedOnce.Load() {
		return errors.New("no external alerts consumed yet")
	}
	return nil
}

// Ready reports whether a batch has been loaded.
func (p *Pipeline) Ready() bool {
	return p.loadedOnce.Load()
}

// Run consumes until ctx is cancelled. Extract and load failures are retried
// with exponential backoff; Run itself only returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("alert consumer started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	r := &retry{min: minRetryDelay, max: maxRetryDelay}
	for ctx.Err() == nil {
		err := p.consume(ctx, r)
		switch {
		case err == nil:
			r.reset()
		case ctx.Err() != nil:
		default:
			p.logger.Error("extract alerts failed", "error", err, "retry_in", r.delay())
			r.wait(ctx)
		}
	}
	p.logger.Info("alert consumer stopping", "reason", ctx.Err())
	return nil
}

// consume handles one extracted batch end to end. A batch that fails to load
// is held and retried rather than dropped: its offsets stay uncommitted and
// the extractor has already moved past them.
func (p *Pipeline) consume(ctx context.Context, r *retry) error {
	started := time.Now()

	raws, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if len(raws) == 0 {
			return fmt.Errorf("extract: %w", err)
		}
		p.logger.Warn("extract ended early, processing partial batch", "error", err, "size", len(raws))
	}
	if len(raws) == 0 {
		return nil
	}
	p.metrics.MessagesConsumed.Add(float64(len(raws)))
	p.metrics.BatchSize.Observe(float64(len(raws)))

	alerts, carried := p.parse(ctx, raws)
	if len(alerts) == 0 {
		return nil
	}
	for {
		err := p.loader.LoadBatch(ctx, alerts)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Error("load alerts failed", "error", err, "size", len(alerts), "retry_in", r.delay())
		r.wait(ctx)
	}
	r.reset()
	p.metrics.AlertsLoaded.Add(float64(len(alerts)))
	for _, raw := range carried {
		p.commit(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(started).Seconds())
	p.loadedOnce.Store(true)
	return nil
}

// parse transforms raws, committing and dropping the ones that fail. It
// returns the alerts and the raw messages they came from.
func (p *Pipeline) parse(ctx context.Context, raws []domain.RawEvent) ([]domain.ExternalAlert, []domain.RawEvent) {
	alerts := make([]domain.ExternalAlert, 0, len(raws))
	carried := make([]domain.RawEvent, 0, len(raws))
	for _, raw := range raws {
		a, err := p.transformer.Transform(ctx, raw)
		if err == nil {
			alerts = append(alerts, a)
			carried = append(carried, raw)
			continue
		}

		attrs := []any{"error", err, "topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			attrs = append(attrs, "field", verr.Field)
		}
		p.logger.Warn("dropping unusable alert message", attrs...)
		p.metrics.TransformErrors.Inc()
		p.commit(ctx, raw)
	}
	return alerts, carried
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

const (
	minRetryDelay = 200 * time.Millisecond
	maxRetryDelay = 5 * time.Second
)

// retry is a doubling backoff between min and max.
type retry struct {
	min, max time.Duration
	next     time.Duration
}

func (r *retry) delay() time.Duration {
	if r.next == 0 {
		r.next = r.min
	}
	return r.next
}

func (r *retry) reset() { r.next = r.min }

// wait sleeps for the current delay, or until ctx is done, then doubles it.
func (r *retry) wait(ctx context.Context) {
	t := time.NewTimer(r.delay())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}
	r.next = min(r.next*2, r.max)
}
