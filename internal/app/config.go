package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/erpctl/internal/apiclient"
	"github.com/florianilch/erpctl/internal/credstore"
	"github.com/florianilch/erpctl/internal/observability"
	"github.com/florianilch/erpctl/internal/session"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageType represents the backends a session can be persisted in.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeEnv     StorageType = "env"
	StorageTypeKeyring StorageType = "keyring"
	StorageTypeRedis   StorageType = "redis"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigAPIBaseURL      = "http://localhost:3000/api/v1"
	DefaultConfigAPITimeout      = apiclient.DefaultTimeout
	DefaultConfigAPIRefreshPath  = apiclient.DefaultRefreshPath
	DefaultConfigAuthStorage     = StorageTypeFile
	DefaultConfigAuthNamespace   = session.StorageKey
	DefaultConfigGatewayHost     = "127.0.0.1"
	DefaultConfigGatewayPort     = 4100
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigTelemetry       = observability.ExporterNone

	// keyringService prefixes the namespace to form the keyring service name.
	keyringService = "erpctl"
)

// APIConfig holds ERP API connection settings.
type APIConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	// Timeout bounds every call, token refreshes included.
	Timeout     time.Duration `json:"timeout" validate:"gte=0"`
	RefreshPath string        `json:"refresh_path" validate:"required,startswith=/"`
}

// AuthConfig describes where the session is persisted.
type AuthConfig struct {
	Storage StorageType `json:"storage" validate:"required,oneof=file env keyring redis"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to the session file
	EnvKey      string `json:"env_key,omitempty"`      // For env storage: environment variable name
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
	RedisURL    string `json:"redis_url,omitempty"`    // For redis storage: redis://host:port/db

	// Namespace the session is stored under. Separate namespaces keep
	// separate sessions, e.g. per ERP environment.
	Namespace string `json:"namespace" validate:"required"`
}

// NewBackend creates the persistence backend from the configuration.
func (a *AuthConfig) NewBackend() (credstore.Backend, error) {
	switch a.Storage {
	case StorageTypeFile:
		return credstore.NewFileStore(a.File)
	case StorageTypeEnv:
		return credstore.NewEnvStore(a.EnvKey)
	case StorageTypeKeyring:
		return credstore.NewKeyringStore(keyringService+"-"+a.Namespace, a.KeyringUser)
	case StorageTypeRedis:
		return credstore.NewRedisStore(a.RedisURL, keyringService+":"+a.Namespace)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// GatewayConfig holds local gateway settings.
type GatewayConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// TelemetryConfig selects where OpenTelemetry log records are exported.
type TelemetryConfig struct {
	Exporter string `json:"exporter" validate:"oneof=none stdout otlphttp otlpgrpc"`
	Endpoint string `json:"endpoint,omitempty" validate:"omitempty,url"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	API       APIConfig       `json:"api"`
	Auth      AuthConfig      `json:"auth"`
	Gateway   GatewayConfig   `json:"gateway"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.API.RefreshPath == "" {
		c.API.RefreshPath = DefaultConfigAPIRefreshPath
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Auth.Namespace == "" {
		c.Auth.Namespace = DefaultConfigAuthNamespace
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = DefaultConfigGatewayHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultConfigGatewayPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetry
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case StorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "erpctl", c.Auth.Namespace+".json")
		}
	case StorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case StorageTypeEnv, StorageTypeRedis:
		// env_key and redis_url must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case StorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case StorageTypeEnv:
		if c.Auth.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case StorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case StorageTypeRedis:
		if c.Auth.RedisURL == "" {
			return errors.New("redis_url required for redis storage")
		}
	}

	return nil
}
