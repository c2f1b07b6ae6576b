package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
)

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Auth         AuthConfig
	OIDC         OIDCConfig
	Provisioning ProvisioningConfig
	Metrics      MetricsConfig
	Log          LogConfig
}

// OIDCConfig holds OIDC authentication configuration.
type OIDCConfig struct {
	Enabled         bool          `env:"OIDC_ENABLED" envDefault:"false"`
	IssuerURL       string        `env:"OIDC_ISSUER_URL"`
	ClientID        string        `env:"OIDC_CLIENT_ID"`
	ClientSecret    string        `env:"OIDC_CLIENT_SECRET"`
	RedirectURL     string        `env:"OIDC_REDIRECT_URL"`
	Scopes          string        `env:"OIDC_SCOPES" envDefault:"openid,email,profile"`
	SessionSecret   string        `env:"OIDC_SESSION_SECRET"`
	SessionDuration time.Duration `env:"OIDC_SESSION_DURATION" envDefault:"24h"`
	AllowedDomains  string        `env:"OIDC_ALLOWED_DOMAINS"`
	LogoutURL       string        `env:"OIDC_LOGOUT_URL"`
}

// GetScopes returns the OIDC scopes as a slice.
func (c *OIDCConfig) GetScopes() []string {
	if c.Scopes == "" {
		return []string{"openid", "email", "profile"}
	}
	return splitList(c.Scopes)
}

// GetAllowedDomains returns the allowed domains as a slice.
func (c *OIDCConfig) GetAllowedDomains() []string {
	if c.AllowedDomains == "" {
		return nil
	}
	return splitList(c.AllowedDomains)
}

// GetSessionSecretBytes returns the session secret as bytes.
func (c *OIDCConfig) GetSessionSecretBytes() ([]byte, error) {
	if c.SessionSecret == "" {
		return nil, fmt.Errorf("OIDC_SESSION_SECRET is required")
	}
	// Try to decode as hex first (64 hex chars = 32 bytes)
	if len(c.SessionSecret) == 64 {
		decoded, err := hex.DecodeString(c.SessionSecret)
		if err == nil {
			return decoded, nil
		}
	}
	// Otherwise use as raw bytes (must be exactly 32 bytes)
	if len(c.SessionSecret) != 32 {
		return nil, fmt.Errorf("OIDC_SESSION_SECRET must be 32 bytes (or 64 hex characters)")
	}
	return []byte(c.SessionSecret), nil
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/bulkvm.db?_foreign_keys=on"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	BootstrapAPIKey string `env:"BOOTSTRAP_API_KEY"`
}

// ProvisioningConfig holds the fixed values the provisioning workflow stamps on every record.
type ProvisioningConfig struct {
	ProfilePath      string `env:"PROVISION_PROFILE"` // empty uses the embedded profile
	PrivateDomain    string `env:"PROVISION_PRIVATE_DOMAIN" envDefault:"patientsky.zone"`
	PublicDomain     string `env:"PROVISION_PUBLIC_DOMAIN" envDefault:"patientsky.dev"`
	VRF              string `env:"PROVISION_VRF" envDefault:"global"`
	DefaultAlertType string `env:"PROVISION_DEFAULT_ALERT_TYPE" envDefault:"24-7-devops"`
	BaselineTags     string `env:"PROVISION_BASELINE_TAGS" envDefault:"ansible,zero_day"`
	Compensate       bool   `env:"PROVISION_COMPENSATE" envDefault:"false"`
}

// GetBaselineTags returns the baseline tags as a slice.
func (c *ProvisioningConfig) GetBaselineTags() []string {
	return splitList(c.BaselineTags)
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// LogConfig holds structured logging configuration.
type LogConfig struct {
	Format    string `env:"LOG_FORMAT" envDefault:"text"` // text or json
	Verbosity int    `env:"LOG_VERBOSITY" envDefault:"0"`
}

// Load loads configuration from environment variables. A .env file in the
// working directory, when present, is applied first without overriding
// variables that are already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("parsing auth config: %w", err)
	}
	if err := env.Parse(&cfg.OIDC); err != nil {
		return nil, fmt.Errorf("parsing oidc config: %w", err)
	}
	if err := env.Parse(&cfg.Provisioning); err != nil {
		return nil, fmt.Errorf("parsing provisioning config: %w", err)
	}
	if err := env.Parse(&cfg.Metrics); err != nil {
		return nil, fmt.Errorf("parsing metrics config: %w", err)
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Provisioning.PrivateDomain == "" || c.Provisioning.PublicDomain == "" {
		return fmt.Errorf("PROVISION_PRIVATE_DOMAIN and PROVISION_PUBLIC_DOMAIN must not be empty")
	}
	if c.Provisioning.VRF == "" {
		return fmt.Errorf("PROVISION_VRF must not be empty")
	}
	if !domain.IsAlertType(c.Provisioning.DefaultAlertType) {
		return fmt.Errorf("PROVISION_DEFAULT_ALERT_TYPE %q is not one of %s",
			c.Provisioning.DefaultAlertType, strings.Join(domain.AlertTypes, ", "))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}

	// Validate OIDC config when enabled
	if c.OIDC.Enabled {
		if c.OIDC.IssuerURL == "" {
			return fmt.Errorf("OIDC_ISSUER_URL is required when OIDC is enabled")
		}
		if c.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC is enabled")
		}
		if c.OIDC.ClientSecret == "" {
			return fmt.Errorf("OIDC_CLIENT_SECRET is required when OIDC is enabled")
		}
		if c.OIDC.RedirectURL == "" {
			return fmt.Errorf("OIDC_REDIRECT_URL is required when OIDC is enabled")
		}
		if _, err := c.OIDC.GetSessionSecretBytes(); err != nil {
			return err
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
