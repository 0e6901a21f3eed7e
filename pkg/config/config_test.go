package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullConfig = `
base_url_auth: https://auth.example.com/oauth/v2
client_id: my-client
client_secret: s3cret
base_url: https://api.example.com/v1/sp
user_key: 0000-1111
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ClientID != "my-client" {
		t.Errorf("ClientID = %q, expected %q", cfg.ClientID, "my-client")
	}
	if cfg.TokenCache != DefaultTokenCache {
		t.Errorf("TokenCache = %q, expected %q", cfg.TokenCache, DefaultTokenCache)
	}
	if cfg.TokenTTL != time.Hour {
		t.Errorf("TokenTTL = %v, expected %v", cfg.TokenTTL, time.Hour)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, expected %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.Retries() != DefaultMaxRetries {
		t.Errorf("Retries() = %d, expected %d", cfg.Retries(), DefaultMaxRetries)
	}
	if cfg.StartDate != "1920-01-01" {
		t.Errorf("StartDate = %q, expected 1920-01-01", cfg.StartDate)
	}
	if cfg.Rows != 1000 {
		t.Errorf("Rows = %d, expected 1000", cfg.Rows)
	}
	if !cfg.HasUserKey() {
		t.Error("HasUserKey() = false, expected true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParseOptionalKeys(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig + `
token_ttl: 15m
timeout: 5s
max_retries: 0
rows: 50
end_date: 2023-12-31
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.TokenTTL != 15*time.Minute {
		t.Errorf("TokenTTL = %v, expected 15m", cfg.TokenTTL)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, expected 5s", cfg.Timeout)
	}
	if cfg.Retries() != 0 {
		t.Errorf("Retries() = %d, expected 0", cfg.Retries())
	}
	if cfg.Rows != 50 {
		t.Errorf("Rows = %d, expected 50", cfg.Rows)
	}
	if got := cfg.ResolveEndDate(time.Now()); got != "2023-12-31" {
		t.Errorf("ResolveEndDate() = %q, expected 2023-12-31", got)
	}
}

func TestValidateMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing []string
	}{
		{
			name:    "missing client secret",
			content: "base_url_auth: a\nclient_id: b\nbase_url: c\n",
			missing: []string{"client_secret"},
		},
		{
			name:    "empty file",
			content: "",
			missing: []string{"base_url_auth", "client_id", "client_secret", "base_url"},
		},
		{
			name:    "blank values",
			content: "base_url_auth: ' '\nclient_id: b\nclient_secret: c\nbase_url: d\n",
			missing: []string{"base_url_auth"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.content))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			err = cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() error = %v, expected ErrInvalid", err)
			}
			for _, key := range tt.missing {
				if !strings.Contains(err.Error(), key) {
					t.Errorf("Validate() error %q does not mention %q", err, key)
				}
			}
		})
	}
}

func TestValidateRejectsBadDates(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig + "start_date: 01/01/1920\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("Validate() error = %v, expected ErrInvalid", err)
	}
}

func TestParseMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("client_id: [unterminated")); !errors.Is(err, ErrInvalid) {
		t.Errorf("Parse() error = %v, expected ErrInvalid", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrInvalid) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, expected ErrInvalid wrapping os.ErrNotExist", err)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BL_CLIENT_SECRET", "from-env")
	t.Setenv("BL_USER_KEY", "env-key")

	cfg, err := Load(writeConfig(t, "base_url_auth: a\nclient_id: b\nbase_url: c\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ClientSecret != "from-env" {
		t.Errorf("ClientSecret = %q, expected %q", cfg.ClientSecret, "from-env")
	}
	if cfg.UserKey != "env-key" {
		t.Errorf("UserKey = %q, expected %q", cfg.UserKey, "env-key")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestResolveEndDateDefaultsToToday(t *testing.T) {
	cfg, _ := Parse([]byte(fullConfig))
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	if got := cfg.ResolveEndDate(now); got != "2024-03-09" {
		t.Errorf("ResolveEndDate() = %q, expected 2024-03-09", got)
	}
}
