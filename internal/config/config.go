// Package config loads gms settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Notification transports.
const (
	TransportDirect = "direct"
	TransportKafka  = "kafka"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	Timezone                string        `mapstructure:"TIMEZONE"`
	CronAdherenceCheck      string        `mapstructure:"CRON_ADHERENCE_CHECK"`
	CronAppointmentReminder string        `mapstructure:"CRON_APPOINTMENT_REMINDER"`
	CronOutboxMaintenance   string        `mapstructure:"CRON_OUTBOX_MAINTENANCE"`
	AdherenceJobTimeout     time.Duration `mapstructure:"ADHERENCE_JOB_TIMEOUT"`
	AdherenceWorkers        int           `mapstructure:"ADHERENCE_WORKERS"`
	AdherenceItemRetries    int           `mapstructure:"ADHERENCE_ITEM_RETRIES"`

	NotifyTransport string   `mapstructure:"NOTIFY_TRANSPORT"`
	KafkaBrokers    []string `mapstructure:"KAFKA_BROKERS"`
	KafkaGroupID    string   `mapstructure:"KAFKA_GROUP_ID"`

	SMTPHost       string  `mapstructure:"SMTP_HOST"`
	SMTPPort       int     `mapstructure:"SMTP_PORT"`
	SMTPUsername   string  `mapstructure:"SMTP_USERNAME"`
	SMTPPassword   string  `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom       string  `mapstructure:"SMTP_FROM"`
	SMTPRatePerSec float64 `mapstructure:"SMTP_RATE_PER_SEC"`

	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`

	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxMaxRetries   int           `mapstructure:"OUTBOX_MAX_RETRIES"`
	OutboxRetention    time.Duration `mapstructure:"OUTBOX_RETENTION"`
}

var defaults = map[string]interface{}{
	"PORT":                      "8080",
	"ENV":                       "development",
	"LOG_LEVEL":                 "info",
	"DB_MAX_CONNS":              20,
	"DB_MIN_CONNS":              2,
	"CORS_ORIGINS":              "*",
	"TIMEZONE":                  "Local",
	"CRON_ADHERENCE_CHECK":      "0 3 * * *",
	"CRON_APPOINTMENT_REMINDER": "0 8 * * *",
	"CRON_OUTBOX_MAINTENANCE":   "@hourly",
	"ADHERENCE_JOB_TIMEOUT":     "30m",
	"ADHERENCE_WORKERS":         4,
	"ADHERENCE_ITEM_RETRIES":    2,
	"NOTIFY_TRANSPORT":          TransportDirect,
	"KAFKA_GROUP_ID":            "gms-notifier",
	"SMTP_PORT":                 587,
	"SMTP_FROM":                 `"Glaucoma System" <no-reply@example.com>`,
	"SMTP_RATE_PER_SEC":         5,
	"OUTBOX_POLL_INTERVAL":      "1s",
	"OUTBOX_BATCH_SIZE":         100,
	"OUTBOX_MAX_RETRIES":        5,
	"OUTBOX_RETENTION":          "168h",
}

// Keys without a default that are still read from the environment.
var unset = []string{
	"DATABASE_URL", "JWT_SECRET", "KAFKA_BROKERS",
	"SMTP_HOST", "SMTP_USERNAME", "SMTP_PASSWORD", "OTLP_ENDPOINT",
}

// Load reads envFile when it exists, then the environment, which wins.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
	}
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}
	for _, key := range unset {
		_ = v.BindEnv(key)
	}

	// A missing .env file is fine.
	if envFile != "" {
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(parsed []string, raw string) []string {
	if len(parsed) > 0 {
		raw = strings.Join(parsed, ",")
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location resolves TIMEZONE. "Local" and empty mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SMTPEnabled reports whether real email delivery is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	for key, spec := range map[string]string{
		"CRON_ADHERENCE_CHECK":      c.CronAdherenceCheck,
		"CRON_APPOINTMENT_REMINDER": c.CronAppointmentReminder,
		"CRON_OUTBOX_MAINTENANCE":   c.CronOutboxMaintenance,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s %q: %w", key, spec, err)
		}
	}

	switch c.NotifyTransport {
	case TransportDirect:
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when NOTIFY_TRANSPORT is %q", TransportKafka)
		}
	default:
		return fmt.Errorf("NOTIFY_TRANSPORT must be %q or %q, got %q", TransportDirect, TransportKafka, c.NotifyTransport)
	}

	if c.AdherenceWorkers <= 0 {
		return fmt.Errorf("ADHERENCE_WORKERS must be positive, got %d", c.AdherenceWorkers)
	}
	if c.AdherenceItemRetries < 0 {
		return fmt.Errorf("ADHERENCE_ITEM_RETRIES must not be negative, got %d", c.AdherenceItemRetries)
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxRetries <= 0 || c.OutboxPollInterval <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE, OUTBOX_MAX_RETRIES and OUTBOX_POLL_INTERVAL must be positive")
	}
	return nil
}

// ValidateServe additionally requires a signing key outside development.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.JWTSecret == "" && !c.IsDev() {
		return fmt.Errorf("JWT_SECRET is required when ENV is %q", c.Env)
	}
	return nil
}
