// Package config provides configuration management for bl-docs.
// It loads configuration from a YAML file, with overrides from environment
// variables and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned (wrapped) when required configuration is missing or malformed.
var ErrInvalid = errors.New("invalid configuration")

// Default values applied by Load when a key is absent.
const (
	DefaultTokenCache = "token_cache.txt"
	DefaultTokenTTL   = time.Hour
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2
	DefaultStartDate  = "1920-01-01"
	DefaultRows       = 1000
)

// Required lists the keys that must be set before any network call is made.
var Required = []string{"base_url_auth", "client_id", "client_secret", "base_url"}

// Config represents the application configuration.
type Config struct {
	AuthBaseURL  string `yaml:"base_url_auth"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	BaseURL      string `yaml:"base_url"`
	UserKey      string `yaml:"user_key"`

	TokenCache        string        `yaml:"token_cache"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        *int          `yaml:"max_retries"`

	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
	Rows      int    `yaml:"rows"`

	HistoryDB   string `yaml:"history_db"`
	MetricsFile string `yaml:"metrics_file"`
}

// envOverrides maps environment variables to the fields they override.
var envOverrides = map[string]func(*Config, string){
	"BL_BASE_URL_AUTH": func(c *Config, v string) { c.AuthBaseURL = v },
	"BL_CLIENT_ID":     func(c *Config, v string) { c.ClientID = v },
	"BL_CLIENT_SECRET": func(c *Config, v string) { c.ClientSecret = v },
	"BL_BASE_URL":      func(c *Config, v string) { c.BaseURL = v },
	"BL_USER_KEY":      func(c *Config, v string) { c.UserKey = v },
	"BL_TOKEN_CACHE":   func(c *Config, v string) { c.TokenCache = v },
	"BL_HISTORY_DB":    func(c *Config, v string) { c.HistoryDB = v },
	"BL_METRICS_FILE":  func(c *Config, v string) { c.MetricsFile = v },
}

// Load reads the YAML configuration file at path and applies environment overrides.
// It automatically loads a .env file from the current directory if available.
// Load does not validate required keys; call Validate for that.
func Load(path string) (*Config, error) {
	// Try to load .env from current directory (ignore error if not found)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", ErrInvalid, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// Parse decodes YAML configuration and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalid, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TokenCache == "" {
		c.TokenCache = DefaultTokenCache
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries == nil {
		n := DefaultMaxRetries
		c.MaxRetries = &n
	}
	if c.StartDate == "" {
		c.StartDate = DefaultStartDate
	}
	if c.Rows <= 0 {
		c.Rows = DefaultRows
	}
}

func (c *Config) applyEnv() {
	for key, set := range envOverrides {
		if value := os.Getenv(key); value != "" {
			set(c, value)
		}
	}
}

// Retries returns the configured retry count.
func (c *Config) Retries() int {
	if c.MaxRetries == nil || *c.MaxRetries < 0 {
		return 0
	}
	return *c.MaxRetries
}

// HasUserKey reports whether a tenant key is configured.
func (c *Config) HasUserKey() bool {
	return strings.TrimSpace(c.UserKey) != ""
}

// Validate validates the configuration.
// It checks that every required key is set and that the date window is well formed.
// With no arguments it checks Required.
func (c *Config) Validate(required ...string) error {
	if len(required) == 0 {
		required = Required
	}

	var missing []string
	for _, key := range required {
		if c.value(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required configuration: %s", ErrInvalid, strings.Join(missing, ", "))
	}

	if _, err := time.Parse(time.DateOnly, c.StartDate); err != nil {
		return fmt.Errorf("%w: start_date %q is not YYYY-MM-DD", ErrInvalid, c.StartDate)
	}
	if c.EndDate != "" {
		if _, err := time.Parse(time.DateOnly, c.EndDate); err != nil {
			return fmt.Errorf("%w: end_date %q is not YYYY-MM-DD", ErrInvalid, c.EndDate)
		}
	}

	return nil
}

// value returns the string form of a configuration key, or "" if unset.
func (c *Config) value(key string) string {
	switch key {
	case "base_url_auth":
		return strings.TrimSpace(c.AuthBaseURL)
	case "client_id":
		return strings.TrimSpace(c.ClientID)
	case "client_secret":
		return strings.TrimSpace(c.ClientSecret)
	case "base_url":
		return strings.TrimSpace(c.BaseURL)
	case "user_key":
		return strings.TrimSpace(c.UserKey)
	case "token_cache":
		return c.TokenCache
	case "history_db":
		return c.HistoryDB
	}
	return ""
}

// ResolveEndDate returns the configured end date, or today's date when unset.
func (c *Config) ResolveEndDate(now time.Time) string {
	if c.EndDate != "" {
		return c.EndDate
	}
	return now.Format(time.DateOnly)
}
