// Package config loads the intake process configuration from a YAML file
// and INTAKE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-intake/adapters/kafka"
	"github.com/goliatone/go-intake/adapters/slack"
	"github.com/goliatone/go-intake/core"
	"github.com/goliatone/go-intake/transport"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type HTTPConfig struct {
	Addr            string        `koanf:"addr" mapstructure:"addr" envconfig:"ADDR"`
	AdminToken      string        `koanf:"admin_token" mapstructure:"admin_token" envconfig:"ADMIN_TOKEN"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" mapstructure:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
	ReadTimeout     time.Duration `koanf:"read_timeout" mapstructure:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `koanf:"write_timeout" mapstructure:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" mapstructure:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver       string `koanf:"driver" mapstructure:"driver" envconfig:"DRIVER"`
	DSN          string `koanf:"dsn" mapstructure:"dsn" envconfig:"DSN"`
	MaxOpenConns int    `koanf:"max_open_conns" mapstructure:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	AutoMigrate  bool   `koanf:"auto_migrate" mapstructure:"auto_migrate" envconfig:"AUTO_MIGRATE"`
	Debug        bool   `koanf:"debug" mapstructure:"debug" envconfig:"DEBUG"`
}

type CacheConfig struct {
	// TenantTTL enables the tenant read cache when positive.
	TenantTTL time.Duration `koanf:"tenant_ttl" mapstructure:"tenant_ttl" envconfig:"TENANT_TTL"`
}

type ClassifierConfig struct {
	Endpoint string            `koanf:"endpoint" mapstructure:"endpoint" envconfig:"ENDPOINT"`
	Timeout  time.Duration     `koanf:"timeout" mapstructure:"timeout" envconfig:"TIMEOUT"`
	Headers  map[string]string `koanf:"headers" mapstructure:"headers" envconfig:"HEADERS"`
}

type KafkaConfig struct {
	kafka.Config `koanf:",squash" mapstructure:",squash"`
	PublishAudit bool `koanf:"publish_audit" mapstructure:"publish_audit" envconfig:"PUBLISH_AUDIT"`
}

type LogConfig struct {
	Level  string `koanf:"level" mapstructure:"level" envconfig:"LEVEL"`
	Format string `koanf:"format" mapstructure:"format" envconfig:"FORMAT"`
}

// RateLimitConfig controls the per-receiver throttle on webhook delivery.
type RateLimitConfig struct {
	Enabled        bool          `koanf:"enabled" mapstructure:"enabled" envconfig:"ENABLED"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff" envconfig:"INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff" envconfig:"MAX_BACKOFF"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled" mapstructure:"enabled" envconfig:"ENABLED"`
}

// App is the full process configuration. Intake carries the pipeline
// settings consumed by core.Service.
type App struct {
	Log        LogConfig                       `koanf:"log" mapstructure:"log"`
	HTTP       HTTPConfig                      `koanf:"http" mapstructure:"http"`
	Database   DatabaseConfig                  `koanf:"database" mapstructure:"database"`
	Cache      CacheConfig                     `koanf:"cache" mapstructure:"cache"`
	Classifier ClassifierConfig                `koanf:"classifier" mapstructure:"classifier"`
	Senders    map[string]transport.SenderSpec `koanf:"senders" mapstructure:"senders"`
	Slack      slack.Config                    `koanf:"slack" mapstructure:"slack"`
	Kafka      KafkaConfig                     `koanf:"kafka" mapstructure:"kafka"`
	RateLimit  RateLimitConfig                 `koanf:"rate_limit" mapstructure:"rate_limit"`
	Metrics    MetricsConfig                   `koanf:"metrics" mapstructure:"metrics"`
	Intake     core.Config                     `koanf:"intake" mapstructure:"intake"`
}

func Defaults() App {
	return App{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			MaxBodyBytes:    1 << 20,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			DSN:          "file:intake.db?cache=shared&_foreign_keys=on",
			MaxOpenConns: 1,
			AutoMigrate:  true,
		},
		Classifier: ClassifierConfig{
			Timeout: 10 * time.Second,
		},
		Senders: map[string]transport.SenderSpec{},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			InitialBackoff: time.Second,
			MaxBackoff:     5 * time.Minute,
		},
		Intake: core.DefaultConfig(),
	}
}

func (a App) Validate() error {
	if strings.TrimSpace(a.HTTP.Addr) == "" {
		return fmt.Errorf("config: http.addr is required")
	}
	if a.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("config: http.max_body_bytes must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(a.Database.Driver)) {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: unsupported database.driver %q", a.Database.Driver)
	}
	if strings.TrimSpace(a.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if a.Cache.TenantTTL < 0 {
		return fmt.Errorf("config: cache.tenant_ttl must be >= 0")
	}
	for kind, spec := range a.Senders {
		if !core.ActionKind(kind).Valid() {
			return fmt.Errorf("config: senders.%s is not a known action kind", kind)
		}
		if strings.TrimSpace(spec.Type) == "" {
			return fmt.Errorf("config: senders.%s.type is required", kind)
		}
	}
	if a.RateLimit.InitialBackoff < 0 || a.RateLimit.MaxBackoff < 0 {
		return fmt.Errorf("config: rate_limit backoffs must be >= 0")
	}
	if a.Kafka.PublishAudit && !a.Kafka.Enabled() {
		return fmt.Errorf("config: kafka.publish_audit requires kafka.brokers")
	}
	return a.Intake.Validate()
}
