// Package config loads application configuration from defaults, an optional
// YAML file and STATUSPAGE_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// EnvPrefix prefixes every environment variable. Double underscores separate
// levels: STATUSPAGE_DATABASE__URL sets database.url.
const EnvPrefix = "STATUSPAGE_"

// listKeys accept comma-separated values from the environment.
var listKeys = map[string]bool{
	"cors.allowed_origins":               true,
	"realtime.websocket.allowed_origins": true,
	"realtime.webhook.urls":              true,
}

// Config is the application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	CORS      CORSConfig      `koanf:"cors"`
	Auth      AuthConfig      `koanf:"auth"`
	Incidents IncidentsConfig `koanf:"incidents"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AuthConfig contains bearer token verification settings.
type AuthConfig struct {
	JWTSecret         string `koanf:"jwt_secret"`
	Issuer            string `koanf:"issuer"`
	Audience          string `koanf:"audience"`
	OrganizationClaim string `koanf:"organization_claim"`
}

// IncidentsConfig contains incident lifecycle settings.
type IncidentsConfig struct {
	MaxConflictRetries int           `koanf:"max_conflict_retries"`
	ConflictBackoff    time.Duration `koanf:"conflict_backoff"`
	// ReconcileSchedule is a cron spec; empty disables periodic reconciliation.
	ReconcileSchedule string `koanf:"reconcile_schedule"`
}

// RealtimeConfig contains event publishing settings.
type RealtimeConfig struct {
	QueueSize         int             `koanf:"queue_size"`
	NumWorkers        int             `koanf:"num_workers"`
	MaxAttempts       int             `koanf:"max_attempts"`
	InitialBackoff    time.Duration   `koanf:"initial_backoff"`
	MaxBackoff        time.Duration   `koanf:"max_backoff"`
	BackoffMultiplier float64         `koanf:"backoff_multiplier"`
	PublishTimeout    time.Duration   `koanf:"publish_timeout"`
	WebSocket         WebSocketConfig `koanf:"websocket"`
	Webhook           WebhookConfig   `koanf:"webhook"`
}

// WebSocketConfig contains websocket transport settings.
type WebSocketConfig struct {
	Enabled        bool          `koanf:"enabled"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	PingInterval   time.Duration `koanf:"ping_interval"`
	SendBuffer     int           `koanf:"send_buffer"`
}

// WebhookConfig contains webhook transport settings.
type WebhookConfig struct {
	Enabled   bool          `koanf:"enabled"`
	URLs      []string      `koanf:"urls"`
	Secret    string        `koanf:"secret"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
}

// Default returns the configuration used when nothing overrides a key.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			OrganizationClaim: "org_id",
		},
		Incidents: IncidentsConfig{
			MaxConflictRetries: 3,
			ConflictBackoff:    20 * time.Millisecond,
			ReconcileSchedule:  "@every 5m",
		},
		Realtime: RealtimeConfig{
			QueueSize:         1024,
			NumWorkers:        4,
			MaxAttempts:       3,
			InitialBackoff:    200 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			PublishTimeout:    5 * time.Second,
			WebSocket: WebSocketConfig{
				Enabled:      true,
				WriteTimeout: 10 * time.Second,
				PingInterval: 30 * time.Second,
				SendBuffer:   64,
			},
			Webhook: WebhookConfig{
				Timeout: 10 * time.Second,
				Burst:   1,
			},
		},
	}
}

// Load reads configuration. path may be empty to skip the YAML file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envValue(key, value string) (string, interface{}) {
	key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")
	if listKeys[key] {
		parts := strings.Split(value, ",")
		list := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		return key, list
	}
	return key, value
}

// Validate rejects settings the application cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("database.max_open_conns must be positive"))
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, errors.New("database.max_idle_conns must not exceed max_open_conns"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", c.Log.Format))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}

	if c.Incidents.MaxConflictRetries < 0 {
		errs = append(errs, errors.New("incidents.max_conflict_retries must not be negative"))
	}
	if c.Incidents.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.Incidents.ReconcileSchedule); err != nil {
			errs = append(errs, fmt.Errorf("incidents.reconcile_schedule: %w", err))
		}
	}

	rt := c.Realtime
	if rt.QueueSize <= 0 {
		errs = append(errs, errors.New("realtime.queue_size must be positive"))
	}
	if rt.NumWorkers <= 0 {
		errs = append(errs, errors.New("realtime.num_workers must be positive"))
	}
	if rt.MaxAttempts <= 0 {
		errs = append(errs, errors.New("realtime.max_attempts must be positive"))
	}
	if rt.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("realtime.backoff_multiplier must be at least 1"))
	}
	if rt.MaxBackoff < rt.InitialBackoff {
		errs = append(errs, errors.New("realtime.max_backoff must not be below initial_backoff"))
	}
	if rt.Webhook.Enabled && len(rt.Webhook.URLs) == 0 {
		errs = append(errs, errors.New("realtime.webhook.urls is required when the webhook is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
