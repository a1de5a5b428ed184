// internal/config/config.go

// Package config reads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	NotifierLog      = "log"
	NotifierPostmark = "postmark"
)

// Config is the complete runtime configuration.
type Config struct {
	Port string
	Env  string

	LogLevel string
	LogDev   bool

	Notifier            string
	EmailLatency        time.Duration
	PostmarkServerToken string
	EmailFrom           string
	PublicBaseURL       string

	SendEmailRatePerMinute int
	SendEmailBurst         int
	ConflictOnDuplicate    bool

	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	MetricsEnabled bool
}

// Development reports whether raw error details may be exposed.
func (c Config) Development() bool {
	return c.Env == EnvDevelopment
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Load builds a Config from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                getEnv("PORT", "3000"),
		Env:                 strings.ToLower(getEnv("APP_ENV", EnvProduction)),
		LogLevel:            getEnv("LOG_LEVEL", ""),
		LogDev:              os.Getenv("LOG_DEV") == "1",
		Notifier:            strings.ToLower(getEnv("NOTIFIER", NotifierLog)),
		PostmarkServerToken: os.Getenv("POSTMARK_SERVER_TOKEN"),
		EmailFrom:           getEnv("EMAIL_FROM", "noreply@example.com"),
		PublicBaseURL:       strings.TrimSuffix(os.Getenv("PUBLIC_BASE_URL"), "/"),
		ServiceName:         getEnv("SERVICE_NAME", "memberhub"),
		ServiceVersion:      getEnv("SERVICE_VERSION", "dev"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.EmailLatency, err = getDuration("EMAIL_LATENCY", 100*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.SendEmailRatePerMinute, err = getInt("SEND_EMAIL_RATE_PER_MINUTE", 30); err != nil {
		return Config{}, err
	}
	if cfg.SendEmailBurst, err = getInt("SEND_EMAIL_BURST", 5); err != nil {
		return Config{}, err
	}
	if cfg.ConflictOnDuplicate, err = getBool("CONFLICT_ON_DUPLICATE", false); err != nil {
		return Config{}, err
	}
	if cfg.MetricsEnabled, err = getBool("METRICS_ENABLED", true); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q: %w", c.Port, err)
	}
	switch c.Notifier {
	case NotifierLog:
	case NotifierPostmark:
		if c.PostmarkServerToken == "" {
			return fmt.Errorf("NOTIFIER=postmark requires POSTMARK_SERVER_TOKEN")
		}
	default:
		return fmt.Errorf("invalid NOTIFIER %q: want %q or %q", c.Notifier, NotifierLog, NotifierPostmark)
	}
	if c.SendEmailRatePerMinute < 0 || c.SendEmailBurst < 0 {
		return fmt.Errorf("send email rate and burst must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
