// Package config loads service configuration from an optional YAML file and
// environment variables. Environment variables take precedence over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/channellicense/channellicense/internal/database"
)

// FileEnvVar names the environment variable that points at a YAML config file.
const FileEnvVar = "LICENSE_CONFIG_FILE"

// Config represents the complete application configuration.
type Config struct {
	Server     ServerConfig    `yaml:"server" envconfig:"APP"`
	Database   DatabaseConfig  `yaml:"database" envconfig:"DB"`
	Auth       AuthConfig      `yaml:"auth" envconfig:"LICENSE"`
	Telemetry  TelemetryConfig `yaml:"telemetry" envconfig:"OTEL"`
	Logging    LoggingConfig   `yaml:"logging" envconfig:"LOG"`
	RateLimit  RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	RequireTLS bool            `yaml:"require_tls" envconfig:"REQUIRE_TLS"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	Env             string        `yaml:"env" envconfig:"ENV" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// DatabaseConfig contains PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST" validate:"required"`
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	User            string        `yaml:"user" envconfig:"USER" validate:"required"`
	Password        string        `yaml:"password" envconfig:"PASSWORD"`
	Name            string        `yaml:"name" envconfig:"NAME" validate:"required"`
	SSLMode         string        `yaml:"ssl_mode" envconfig:"SSL_MODE" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" validate:"min=1,max=1000"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" validate:"min=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT"`
	TxIsolation     string        `yaml:"tx_isolation" envconfig:"TX_ISOLATION" validate:"oneof=read_committed repeatable_read serializable"`
	AutoMigrate     bool          `yaml:"auto_migrate" envconfig:"AUTO_MIGRATE"`
}

// AuthConfig contains admin authentication configuration.
type AuthConfig struct {
	Enabled           bool          `yaml:"enabled" envconfig:"AUTH_ENABLED"`
	AdminUsername     string        `yaml:"admin_username" envconfig:"ADMIN_USERNAME"`
	AdminPasswordHash string        `yaml:"admin_password_hash" envconfig:"ADMIN_PASSWORD_HASH"`
	TokenSigningKey   string        `yaml:"token_signing_key" envconfig:"TOKEN_SIGNING_KEY"`
	TokenIssuer       string        `yaml:"token_issuer" envconfig:"TOKEN_ISSUER"`
	TokenTTL          time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL" validate:"gt=0"`
}

// TelemetryConfig contains OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled" envconfig:"ENABLED"`
	Exporter     string `yaml:"exporter" envconfig:"EXPORTER" validate:"oneof=otlp prometheus"`
	OTLPEndpoint string `yaml:"otlp_endpoint" envconfig:"EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json console"`
}

// RateLimitConfig contains request limits per minute.
type RateLimitConfig struct {
	License int `yaml:"license" envconfig:"LICENSE" validate:"min=1"`
	Auth    int `yaml:"auth" envconfig:"AUTH" validate:"min=1"`
	Admin   int `yaml:"admin" envconfig:"ADMIN" validate:"min=1"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			Env:             "development",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "channellicense",
			Password:        "localdev",
			Name:            "channellicense",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			TxIsolation:     "read_committed",
		},
		Auth: AuthConfig{
			Enabled:       true,
			AdminUsername: "admin",
			TokenIssuer:   "channellicense",
			TokenTTL:      15 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:      true,
			Exporter:     "otlp",
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "channellicense-api",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			License: 60,
			Auth:    10,
			Admin:   100,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// LICENSE_CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnvVar); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks field ranges and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Auth.Enabled {
		if c.Auth.AdminUsername == "" {
			return errors.New("auth is enabled but LICENSE_ADMIN_USERNAME is empty")
		}
		if c.Auth.AdminPasswordHash == "" {
			return errors.New("auth is enabled but LICENSE_ADMIN_PASSWORD_HASH is empty")
		}
	}

	return nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Connection returns the settings for database.Connect.
func (c DatabaseConfig) Connection() database.Config {
	return database.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Name,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnectTimeout:  c.ConnectTimeout,
	}
}
