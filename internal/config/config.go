package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"
)

// Notification backends selectable via NOTIFY_BACKEND.
const (
	NotifyLog   = "log"
	NotifyExpo  = "expo"
	NotifyKafka = "kafka"
	NotifyNATS  = "nats"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DatabasePath  string
	JWTSecret     string
	DeviceHashKey string

	NotifyBackend string
	ExpoPushURL   string
	ExpoTimeout   time.Duration
	NATSURL       string
	NATSSubject   string

	// Kafka carries crawler alerts in and, with NOTIFY_BACKEND=kafka, push jobs out.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaAlertsTopic   string
	KafkaNotifyTopic   string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Media classifier configuration.
	ClassifierURL       string
	ClassifierEnabled   bool
	ClassifierTimeout   time.Duration
	ClassifierCacheSize int

	RetentionSchedule string
	DemoResolveAfter  time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	expoTimeout, err := parsePositiveDuration("EXPO_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	classifierTimeout, err := parsePositiveDuration("CLASSIFIER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	demoResolveAfter, err := parsePositiveDuration("DEMO_RESOLVE_AFTER", "30s")
	if err != nil {
		return nil, err
	}

	classifierURL := os.Getenv("CLASSIFIER_URL")
	classifierEnabled := classifierURL != ""
	if v := os.Getenv("CLASSIFIER_ENABLED"); v != "" {
		classifierEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabasePath:  sharedcfg.EnvOrDefault("DATABASE_PATH", "crowd-evac.db"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		DeviceHashKey: os.Getenv("DEVICE_HASH_KEY"),

		NotifyBackend: sharedcfg.EnvOrDefault("NOTIFY_BACKEND", NotifyLog),
		ExpoPushURL:   sharedcfg.EnvOrDefault("EXPO_PUSH_URL", "https://exp.host/--/api/v2/push/send"),
		ExpoTimeout:   expoTimeout,
		NATSURL:       sharedcfg.EnvOrDefault("NATS_URL", "nats://localhost:4222"),
		NATSSubject:   sharedcfg.EnvOrDefault("NATS_SUBJECT", "crowd-evac.notifications"),

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertsTopic:   sharedcfg.EnvOrDefault("KAFKA_ALERTS_TOPIC", "external-disaster-alerts"),
		KafkaNotifyTopic:   sharedcfg.EnvOrDefault("KAFKA_NOTIFY_TOPIC", "push-notifications"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "crowd-evac"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		ClassifierURL:       classifierURL,
		ClassifierEnabled:   classifierEnabled,
		ClassifierTimeout:   classifierTimeout,
		ClassifierCacheSize: parseCacheSize(),

		RetentionSchedule: sharedcfg.EnvOrDefault("RETENTION_SCHEDULE", "@every 1m"),
		DemoResolveAfter:  demoResolveAfter,
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if len(cfg.DeviceHashKey) > 64 {
		return nil, errors.New("DEVICE_HASH_KEY must be at most 64 bytes")
	}
	if cfg.DatabasePath == "" {
		return nil, errors.New("DATABASE_PATH is required")
	}
	switch cfg.NotifyBackend {
	case NotifyLog, NotifyExpo, NotifyNATS:
	case NotifyKafka:
		if cfg.KafkaNotifyTopic == "" {
			return nil, errors.New("KAFKA_NOTIFY_TOPIC is required when NOTIFY_BACKEND=kafka")
		}
	default:
		return nil, fmt.Errorf("invalid NOTIFY_BACKEND %q", cfg.NotifyBackend)
	}
	if (cfg.KafkaEnabled || cfg.NotifyBackend == NotifyKafka) && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaEnabled && cfg.KafkaAlertsTopic == "" {
		return nil, errors.New("KAFKA_ALERTS_TOPIC is required")
	}
	if cfg.ClassifierEnabled && cfg.ClassifierURL == "" {
		return nil, errors.New("CLASSIFIER_ENABLED is true but CLASSIFIER_URL is not set")
	}
	if _, err := cron.ParseStandard(cfg.RetentionSchedule); err != nil {
		return nil, fmt.Errorf("invalid RETENTION_SCHEDULE: %w", err)
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseCacheSize() int {
	if s := os.Getenv("CLASSIFIER_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
