// Package config provides configuration management for Meshgate.
//
// This package handles loading configuration from multiple sources:
//   - YAML configuration files
//   - Environment variables (with MG_ prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./configs/config.yaml, ~/.meshgate/config.yaml, /etc/meshgate/config.yaml)
//  3. .env files
//  4. Environment variables (MG_ prefix)
//
// # Usage Example
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
//
// # Environment Variables
//
// Environment variables override all other configuration sources.
// Use MG_ prefix and underscores for nested keys:
//   - MG_SERVER_PORT=8095
//   - MG_DEPLOY_CONTROL_PLANE_URL=http://localhost:9901
//   - MG_DISCOVERY_DOCKER_SOCKET=/var/run/docker.sock
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for Meshgate.
type Config struct {
	// Server contains HTTP server configuration
	Server ServerConfig `mapstructure:"server"`

	// Deploy contains deployment dispatcher settings
	Deploy DeployConfig `mapstructure:"deploy"`

	// Discovery contains container runtime and health probing settings
	Discovery DiscoveryConfig `mapstructure:"discovery"`

	// Logging contains logging and observability settings
	Logging LoggingConfig `mapstructure:"logging"`

	// Security contains authentication and rate limiting settings
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address (default: 0.0.0.0)
	Host string `mapstructure:"host"`

	// Port is the server listen port (default: 8095)
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug enables debug logging and additional endpoints
	Debug bool `mapstructure:"debug"`

	// TLSEnabled enables HTTPS
	TLSEnabled bool `mapstructure:"tls_enabled"`

	// TLSCert is the path to the TLS certificate file
	TLSCert string `mapstructure:"tls_cert"`

	// TLSKey is the path to the TLS private key file
	TLSKey string `mapstructure:"tls_key"`
}

// DeployConfig contains deployment dispatcher settings.
type DeployConfig struct {
	// ControlPlaneURL is the endpoint artifacts are applied to. When empty,
	// deploys run in dry-run mode and log instead of applying.
	ControlPlaneURL string `mapstructure:"control_plane_url"`

	// Timeout bounds one deploy end to end; overruns leave the entity in
	// error status with a timeout detail.
	Timeout time.Duration `mapstructure:"timeout"`

	// ApplyTimeout bounds a single apply HTTP request.
	ApplyTimeout time.Duration `mapstructure:"apply_timeout"`
}

// DiscoveryConfig contains container runtime and health probing settings.
type DiscoveryConfig struct {
	// DockerSocket is the path to the Docker socket
	DockerSocket string `mapstructure:"docker_socket"`

	// ProbeInterval is the default interval between health probes for
	// services that do not set their own
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// ProbeTimeout is the default hard per-probe timeout
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format"`

	// Output is the log output destination (stdout, file)
	Output string `mapstructure:"output"`
}

// SecurityConfig contains security and rate limiting settings.
type SecurityConfig struct {
	// RateLimit is the maximum requests per second per client
	RateLimit int `mapstructure:"rate_limit"`

	// AllowedOrigins are the CORS allowed origins
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AuthEnabled enables JWT authentication
	AuthEnabled bool `mapstructure:"auth_enabled"`

	// JWTSecret is the secret key for signing JWT tokens
	JWTSecret string `mapstructure:"jwt_secret"`

	// JWTExpiration is the JWT token expiration duration (default: 24h)
	JWTExpiration time.Duration `mapstructure:"jwt_expiration"`

	// RefreshTokenExpiration is the refresh token expiration duration (default: 7 days)
	RefreshTokenExpiration time.Duration `mapstructure:"refresh_token_expiration"`

	// Users are the accounts allowed to authenticate, keyed by username.
	Users map[string]UserConfig `mapstructure:"users"`
}

// UserConfig declares one API account.
type UserConfig struct {
	// PasswordHash is the bcrypt hash of the account password
	PasswordHash string `mapstructure:"password_hash"`

	// Role is the account's access level (read, write, admin)
	Role string `mapstructure:"role"`
}

var cfg *Config

// Load reads configuration from a file and environment variables.
// If cfgFile is empty, it searches for config.yaml in standard locations.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MG_ prefix)
//  2. .env file
//  3. Configuration file
//  4. Default values
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.meshgate")
		v.AddConfigPath("/etc/meshgate")
	}

	if err := v.ReadInConfig(); err != nil {
		// If config file was explicitly specified, fail on any error other
		// than the file being absent; with auto-discovery only fail on
		// errors other than ConfigFileNotFoundError.
		if cfgFile != "" {
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("MG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8095)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.tls_enabled", false)

	v.SetDefault("deploy.control_plane_url", "")
	v.SetDefault("deploy.timeout", "60s")
	v.SetDefault("deploy.apply_timeout", "15s")

	v.SetDefault("discovery.docker_socket", "/var/run/docker.sock")
	v.SetDefault("discovery.probe_interval", "10s")
	v.SetDefault("discovery.probe_timeout", "2s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("security.rate_limit", 100)
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.auth_enabled", false)
	v.SetDefault("security.jwt_secret", "change-me-in-production")
	v.SetDefault("security.jwt_expiration", "24h")
	v.SetDefault("security.refresh_token_expiration", "168h") // 7 days
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Deploy.Timeout <= 0 {
		return fmt.Errorf("deploy timeout must be positive")
	}

	if cfg.Discovery.ProbeTimeout >= cfg.Discovery.ProbeInterval {
		return fmt.Errorf("probe timeout must be shorter than probe interval")
	}

	if cfg.Security.AuthEnabled && cfg.Security.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required when auth is enabled")
	}

	return nil
}

// Get returns the last configuration loaded by Load.
func Get() *Config {
	return cfg
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
