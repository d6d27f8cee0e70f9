package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is the process configuration of the API server.
type AppConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AuthMode       string
	StorageBackend string
	DatabaseURL    string

	// PaidPaperPubs enables consent gating of paper publications: non-admins may edit an
	// existing paper_pubs value but may neither set one from scratch nor clear it.
	PaidPaperPubs bool

	// IdempotencyTTL bounds how long create responses are replayed for a repeated key.
	IdempotencyTTL time.Duration
	// IdempotencyPurgeSchedule is a cron spec for deleting expired idempotency records.
	IdempotencyPurgeSchedule string

	Notify   WebhookConfig
	MailSync MailSyncConfig
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

type MailSyncConfig struct {
	WebhookConfig
	QueueSize int
	// SweepSchedule is a cron spec for full list reconciliation; empty disables it.
	SweepSchedule string
}

// LoadDotEnv loads a .env file when present. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func LoadAppConfigFromEnv() (AppConfig, error) {
	cfg := AppConfig{
		Port:           getenv("PORT", "8080"),
		Env:            getenv("APP_ENV", "prod"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		AuthMode:       getenv("AUTH_MODE", "token"),
		StorageBackend: getenv("STORAGE_BACKEND", "memory"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		IdempotencyTTL:           24 * time.Hour,
		IdempotencyPurgeSchedule: getenv("IDEMPOTENCY_PURGE_SCHEDULE", "@hourly"),

		MailSync: MailSyncConfig{
			QueueSize:     256,
			SweepSchedule: os.Getenv("MAILSYNC_SWEEP_SCHEDULE"),
		},
	}

	var err error
	if cfg.PaidPaperPubs, err = getenvBool("PAID_PAPER_PUBS", false); err != nil {
		return AppConfig{}, err
	}

	if v := os.Getenv("IDEMPOTENCY_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return AppConfig{}, fmt.Errorf("IDEMPOTENCY_TTL must be a positive duration (e.g. 24h)")
		}
		cfg.IdempotencyTTL = d
	}

	timeout := 5 * time.Second
	if v := os.Getenv("WEBHOOK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return AppConfig{}, fmt.Errorf("WEBHOOK_TIMEOUT must be a duration (e.g. 5s): %w", err)
		}
		timeout = d
	}
	cfg.Notify = WebhookConfig{URL: os.Getenv("NOTIFY_WEBHOOK_URL"), Timeout: timeout}
	cfg.MailSync.WebhookConfig = WebhookConfig{URL: os.Getenv("MAILSYNC_WEBHOOK_URL"), Timeout: timeout}

	if v := os.Getenv("MAILSYNC_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return AppConfig{}, fmt.Errorf("MAILSYNC_QUEUE_SIZE must be a positive integer")
		}
		cfg.MailSync.QueueSize = n
	}

	switch cfg.StorageBackend {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return AppConfig{}, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return AppConfig{}, fmt.Errorf("invalid STORAGE_BACKEND %q (must be memory or postgres)", cfg.StorageBackend)
	}
	switch cfg.AuthMode {
	case "dev", "token":
	default:
		return AppConfig{}, fmt.Errorf("invalid AUTH_MODE %q (must be dev or token)", cfg.AuthMode)
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", k, err)
	}
	return b, nil
}
