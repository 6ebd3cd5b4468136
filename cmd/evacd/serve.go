package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/adapter/classifier"
	"github.com/couchcryptid/crowd-evac-service/internal/adapter/expo"
	httpadapter "github.com/couchcryptid/crowd-evac-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/crowd-evac-service/internal/adapter/kafka"
	natsadapter "github.com/couchcryptid/crowd-evac-service/internal/adapter/nats"
	"github.com/couchcryptid/crowd-evac-service/internal/adapter/sqlite"
	"github.com/couchcryptid/crowd-evac-service/internal/auth"
	"github.com/couchcryptid/crowd-evac-service/internal/config"
	"github.com/couchcryptid/crowd-evac-service/internal/devices"
	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/escalation"
	"github.com/couchcryptid/crowd-evac-service/internal/evacuation"
	"github.com/couchcryptid/crowd-evac-service/internal/keylock"
	"github.com/couchcryptid/crowd-evac-service/internal/location"
	"github.com/couchcryptid/crowd-evac-service/internal/maintenance"
	"github.com/couchcryptid/crowd-evac-service/internal/notify"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
	"github.com/couchcryptid/crowd-evac-service/internal/pipeline"
	"github.com/couchcryptid/crowd-evac-service/internal/reports"
	"github.com/couchcryptid/crowd-evac-service/internal/verification"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, maintenance jobs and the external alert consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// readiness combines the database check with the pipeline's when Kafka is on.
type readiness struct {
	store    *sqlite.Store
	pipeline *pipeline.Pipeline
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	if err := r.store.CheckReadiness(ctx); err != nil {
		return err
	}
	if r.pipeline != nil {
		return r.pipeline.CheckReadiness(ctx)
	}
	return nil
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.MigrateUp(); err != nil {
		return err
	}

	gateway, closeGateway, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	defer closeGateway()

	// Media classifier (feature-flagged via CLASSIFIER_ENABLED / CLASSIFIER_URL).
	var mediaClassifier domain.MediaClassifier
	if cfg.ClassifierEnabled {
		client := classifier.NewClient(cfg.ClassifierURL, cfg.ClassifierTimeout, logger, metrics)
		mediaClassifier = classifier.NewCachedClassifier(client, cfg.ClassifierCacheSize, metrics)
		logger.Info("media classifier enabled", "cache_size", cfg.ClassifierCacheSize, "timeout", cfg.ClassifierTimeout)
	} else {
		logger.Info("media classifier disabled")
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, clock)
	if err != nil {
		return err
	}
	tracker, err := location.NewTracker(store, []byte(cfg.DeviceHashKey), clock, logger, metrics)
	if err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher(gateway, store, store, clock, logger, metrics)
	locks := keylock.New[int64]()
	controller := escalation.NewController(store, dispatcher, locks, clock, logger, metrics, cfg.DemoResolveAfter)
	defer controller.Stop()
	ledger := verification.NewLedger(store)
	ingestor := pipeline.NewIngestor(store, dispatcher, clock, logger)

	if _, err := controller.ReconcileDemos(ctx); err != nil {
		logger.Error("demo reconciliation failed", "error", err)
	}

	scheduler := maintenance.NewScheduler(logger, time.Minute)
	jobs := []maintenance.Job{
		{Name: "location-sweep", Run: func(ctx context.Context) error {
			_, err := tracker.Sweep(ctx)
			return err
		}},
		{Name: "demo-reconcile", Run: func(ctx context.Context) error {
			_, err := controller.ReconcileDemos(ctx)
			return err
		}},
	}
	for _, job := range jobs {
		if err := scheduler.Add(cfg.RetentionSchedule, job); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	ready := readiness{store: store}
	var reader *kafkaadapter.Reader
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		transformer := pipeline.NewTransformer(clock)
		ready.pipeline = pipeline.New(reader, transformer, ingestor, logger, metrics, cfg.BatchSize)
		logger.Info("external alert consumer enabled", "topic", cfg.KafkaAlertsTopic, "group", cfg.KafkaGroupID)
	}

	svc := httpadapter.Services{
		Reports:      reports.NewService(store, ledger, mediaClassifier, dispatcher, clock, logger),
		Verification: verification.NewService(store, controller, locks, clock, logger, metrics),
		Ledger:       ledger,
		Escalation:   controller,
		Advisor:      evacuation.NewAdvisor(store, clock),
		Alerter:      evacuation.NewCrowdAlerter(store, dispatcher, clock, logger, metrics),
		SafeAreas:    evacuation.NewSafeAreas(store, clock),
		Tracker:      tracker,
		Devices:      devices.NewRegistry(store, clock),
		Ingestor:     ingestor,
		Notifier:     dispatcher,
		Audit:        store,
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, issuer, ready, logger, metrics)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start external alert pipeline.
	if ready.pipeline != nil {
		go func() {
			if err := ready.pipeline.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// newGateway builds the notification transport selected by NOTIFY_BACKEND
// and a func releasing its resources.
func newGateway(cfg *config.Config, logger *slog.Logger) (domain.NotificationGateway, func(), error) {
	switch cfg.NotifyBackend {
	case config.NotifyExpo:
		logger.Info("notification backend: expo", "url", cfg.ExpoPushURL)
		return expo.NewClient(cfg.ExpoPushURL, cfg.ExpoTimeout, logger), func() {}, nil
	case config.NotifyKafka:
		logger.Info("notification backend: kafka", "topic", cfg.KafkaNotifyTopic)
		w := kafkaadapter.NewWriter(cfg, logger)
		return w, func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}, nil
	case config.NotifyNATS:
		logger.Info("notification backend: nats", "url", cfg.NATSURL, "subject", cfg.NATSSubject)
		nc, err := natsadapter.Connect(cfg.NATSURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return natsadapter.NewPublisher(nc, cfg.NATSSubject, logger), func() {
			if err := nc.Drain(); err != nil {
				logger.Error("nats drain error", "error", err)
			}
		}, nil
	default:
		logger.Info("notification backend: log")
		return notify.NewLogGateway(logger), func() {}, nil
	}
}
