// Package config loads server configuration from a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Admin     AdminConfig     `yaml:"admin"`
	TLS       TLSConfig       `yaml:"tls"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	APIPort int `yaml:"api_port"`
	// MetricsPort of 0 disables the metrics server.
	MetricsPort int `yaml:"metrics_port"`
}

type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

type LedgerConfig struct {
	Retention int `yaml:"retention"`
}

type AdminConfig struct {
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type TLSConfig struct {
	CertFile    string `yaml:"cert_file"`
	KeyFile     string `yaml:"key_file"`
	ACMEDomain  string `yaml:"acme_domain"`
	ACMEEmail   string `yaml:"acme_email"`
	ACMEStaging bool   `yaml:"acme_staging"`
}

// TLS modes returned by Config.TLSMode.
const (
	TLSModeNone   = "none"
	TLSModeManual = "manual"
	TLSModeACME   = "acme"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "keyward.db"},
		Server:   ServerConfig{APIPort: 8080, MetricsPort: 9090},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 100,
			Window:            60 * time.Second,
			SweepInterval:     5 * time.Minute,
		},
		Ledger: LedgerConfig{Retention: 10000},
		Admin: AdminConfig{
			Username:   "admin",
			Password:   "admin123",
			SessionTTL: 24 * time.Hour,
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// KEYWARD_* environment overrides. An empty path or a missing file leaves
// the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Database.Path, "KEYWARD_DB")
	setString(&c.Admin.Username, "KEYWARD_ADMIN_USERNAME")
	setString(&c.Admin.Password, "KEYWARD_ADMIN_PASSWORD")
	setString(&c.TLS.CertFile, "KEYWARD_TLS_CERT")
	setString(&c.TLS.KeyFile, "KEYWARD_TLS_KEY")
	setString(&c.TLS.ACMEDomain, "KEYWARD_ACME_DOMAIN")
	setString(&c.TLS.ACMEEmail, "KEYWARD_ACME_EMAIL")

	return errors.Join(
		setInt(&c.Server.APIPort, "KEYWARD_API_PORT"),
		setInt(&c.Server.MetricsPort, "KEYWARD_METRICS_PORT"),
		setInt(&c.RateLimit.RequestsPerWindow, "KEYWARD_RATE_LIMIT"),
		setDuration(&c.RateLimit.Window, "KEYWARD_RATE_WINDOW"),
		setDuration(&c.RateLimit.SweepInterval, "KEYWARD_SWEEP_INTERVAL"),
		setInt(&c.Ledger.Retention, "KEYWARD_LEDGER_RETENTION"),
		setDuration(&c.Admin.SessionTTL, "KEYWARD_SESSION_TTL"),
		setBool(&c.TLS.ACMEStaging, "KEYWARD_ACME_STAGING"),
	)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

// TLSMode reports how the API server terminates TLS.
func (c *Config) TLSMode() string {
	switch {
	case c.TLS.ACMEDomain != "":
		return TLSModeACME
	case c.TLS.CertFile != "":
		return TLSModeManual
	default:
		return TLSModeNone
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var problems []string

	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Server.APIPort <= 0 || c.Server.APIPort > 65535 {
		problems = append(problems, fmt.Sprintf("server.api_port %d out of range", c.Server.APIPort))
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		problems = append(problems, fmt.Sprintf("server.metrics_port %d out of range", c.Server.MetricsPort))
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.APIPort {
		problems = append(problems, "server.metrics_port must differ from server.api_port")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		problems = append(problems, "rate_limit.requests_per_window must be positive")
	}
	if c.RateLimit.Window <= 0 {
		problems = append(problems, "rate_limit.window must be positive")
	}
	if c.RateLimit.SweepInterval <= 0 {
		problems = append(problems, "rate_limit.sweep_interval must be positive")
	}
	if c.Ledger.Retention <= 0 {
		problems = append(problems, "ledger.retention must be positive")
	}
	if c.Admin.Username == "" || c.Admin.Password == "" {
		problems = append(problems, "admin.username and admin.password are required")
	}
	if c.Admin.SessionTTL <= 0 {
		problems = append(problems, "admin.session_ttl must be positive")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		problems = append(problems, "tls.cert_file and tls.key_file must be set together")
	}
	if c.TLS.ACMEDomain != "" && c.TLS.CertFile != "" {
		problems = append(problems, "tls.acme_domain cannot be combined with tls.cert_file")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
