// Package config loads service configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
// CLERKQUEUE_SERVER_PORT sets server.port. Keys containing a double underscore
// split only there: CLERKQUEUE_RATE_LIMIT__ENABLED sets rate_limit.enabled and
// CLERKQUEUE_INGRESS__KAFKA__BROKERS sets ingress.kafka.brokers.
const EnvPrefix = "CLERKQUEUE_"

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Auth      AuthConfig      `koanf:"auth"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Queue     QueueConfig     `koanf:"queue"`
	Ingress   IngressConfig   `koanf:"ingress"`
	Tracing   TracingConfig   `koanf:"tracing"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required,numeric"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required,numeric,nefield=Port"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"gte=1"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// AuthConfig contains bearer token verification settings.
type AuthConfig struct {
	SecretKey string        `koanf:"secret_key" validate:"required,min=32"`
	Issuer    string        `koanf:"issuer"`
	Leeway    time.Duration `koanf:"leeway" validate:"gte=0"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RateLimitConfig contains per-client request limits.
type RateLimitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Requests int           `koanf:"requests" validate:"required_if=Enabled true,gte=0"`
	Window   time.Duration `koanf:"window" validate:"required_if=Enabled true,gte=0"`
}

// QueueConfig contains queue engine settings.
type QueueConfig struct {
	// EnforceAssignee restricts advance and reject to the clerk holding the claim.
	EnforceAssignee bool `koanf:"enforce_assignee"`
	// Timezone sets the day boundary of the today counter.
	Timezone               string        `koanf:"timezone" validate:"required"`
	MetricsCollectInterval time.Duration `koanf:"metrics_collect_interval" validate:"gt=0"`
}

// IngressConfig contains the ingress adapters.
type IngressConfig struct {
	Kafka    KafkaConfig    `koanf:"kafka"`
	Deadline DeadlineConfig `koanf:"deadline"`
}

// KafkaConfig contains Kafka submission consumer and transition publisher settings.
type KafkaConfig struct {
	Enabled          bool     `koanf:"enabled"`
	Brokers          []string `koanf:"brokers" validate:"required_if=Enabled true"`
	ClientID         string   `koanf:"client_id"`
	GroupID          string   `koanf:"group_id" validate:"required_if=Enabled true"`
	SubmissionsTopic string   `koanf:"submissions_topic" validate:"required_if=Enabled true"`
	// TransitionsTopic enables the transition publisher when set.
	TransitionsTopic string        `koanf:"transitions_topic"`
	ConnectTimeout   time.Duration `koanf:"connect_timeout" validate:"gte=0"`
}

// DeadlineConfig contains deadline scanner settings.
type DeadlineConfig struct {
	Enabled      bool          `koanf:"enabled"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"required_if=Enabled true,gte=0"`
	Horizon      time.Duration `koanf:"horizon" validate:"required_if=Enabled true,gte=0"`
	BatchSize    int           `koanf:"batch_size" validate:"required_if=Enabled true,gte=0"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool    `koanf:"insecure"`
	SampleRatio float64 `koanf:"sample_ratio" validate:"gte=0,lte=1"`
	ServiceName string  `koanf:"service_name"`
}

// Default returns the configuration used for every key the file and environment leave unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectAttempts: 5,
			ConnectTimeout:  60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			Leeway: 30 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 100,
			Window:   time.Minute,
		},
		Queue: QueueConfig{
			Timezone:               "UTC",
			MetricsCollectInterval: 15 * time.Second,
		},
		Ingress: IngressConfig{
			Kafka: KafkaConfig{
				ClientID:         "clerk-queue",
				GroupID:          "clerk-queue",
				SubmissionsTopic: "court.submissions",
				ConnectTimeout:   2 * time.Minute,
			},
			Deadline: DeadlineConfig{
				PollInterval: time.Minute,
				Horizon:      72 * time.Hour,
				BatchSize:    100,
			},
		},
		Tracing: TracingConfig{
			Insecure:    true,
			SampleRatio: 1,
			ServiceName: "clerk-queue",
		},
	}
}

// Load reads configuration from path (optional) and environment overrides, then validates it.
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
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv is Load with the file path taken from CLERKQUEUE_CONFIG.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("CLERKQUEUE_CONFIG"))
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := time.LoadLocation(c.Queue.Timezone); err != nil {
		return fmt.Errorf("invalid config: queue.timezone: %w", err)
	}
	return nil
}

// Location returns the configured queue timezone. Validate must have passed.
func (c QueueConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// listKeys are split on commas when set from the environment.
var listKeys = map[string]bool{
	"cors.allowed_origins":  true,
	"ingress.kafka.brokers": true,
}

func envValue(name, value string) (string, interface{}) {
	key := envKey(name)
	if listKeys[key] {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}
	return key, value
}

// envKey maps CLERKQUEUE_SECTION_SOME_KEY to section.some_key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if strings.Contains(key, "__") {
		return strings.ReplaceAll(key, "__", ".")
	}
	return strings.Replace(key, "_", ".", 1)
}
