// Package config provides provider configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/httpserver-provider/pkg/provider"
	"github.com/morezero/httpserver-provider/pkg/semver"
)

const logPrefix = "config:LoadConfig"

// Config holds httpserver-provider configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"httpserver-provider"`

	// Control subject override (empty = derive from PROVIDER_VERSION)
	ProviderSubject string `envconfig:"PROVIDER_SUBJECT"`
	ProviderVersion string `envconfig:"PROVIDER_VERSION" default:"1.0.0"`
	// Modules are reached at <prefix>.<module>.<operation>
	ActorSubjectPrefix string `envconfig:"ACTOR_SUBJECT_PREFIX" default:"actor"`

	// Listener behavior
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownGrace  time.Duration `envconfig:"SHUTDOWN_GRACE" default:"10s"`
	MaxBodyBytes   int64         `envconfig:"MAX_BODY_BYTES" default:"0"`

	// Admin endpoint (/health, /ready, /metrics)
	AdminAddr string `envconfig:"ADMIN_ADDR" default:":9090"`

	// Database (optional; empty keeps bindings in memory only)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// Bootstrap
	BootstrapFile string `envconfig:"BOOTSTRAP_FILE"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ControlSubject returns PROVIDER_SUBJECT, or the subject derived from the
// capability id and the major of PROVIDER_VERSION.
func (c *Config) ControlSubject() (string, error) {
	if c.ProviderSubject != "" {
		return c.ProviderSubject, nil
	}
	return semver.ControlSubject(provider.CapabilityID, c.ProviderVersion)
}

// ValidateForServe checks required config when running the provider.
func (c *Config) ValidateForServe() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if _, err := semver.ParseVersion(c.ProviderVersion); err != nil {
		return fmt.Errorf("%s - PROVIDER_VERSION: %w", logPrefix, err)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must not be negative", logPrefix)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("%s - SHUTDOWN_GRACE must be positive", logPrefix)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("%s - MAX_BODY_BYTES must not be negative", logPrefix)
	}
	if c.AdminAddr == "" {
		return fmt.Errorf("%s - ADMIN_ADDR is required for serve", logPrefix)
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - RUN_MIGRATIONS requires DATABASE_URL", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, bindings).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
