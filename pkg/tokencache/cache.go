// Package tokencache persists a bearer token between runs.
//
// The cache file is plaintext with two lines: the token, then its expiration
// as floating-point Unix seconds. A missing or unreadable file is a cache miss.
package tokencache

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Token is a bearer token and the instant it stops being valid.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token is usable at now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// Cache reads and writes the token cache file.
type Cache struct {
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for cache-miss diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates a Cache backed by the file at path.
func New(path string, opts ...Option) *Cache {
	c := &Cache{
		path:   path,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// Load returns the cached token if it exists and has not expired.
func (c *Cache) Load() (Token, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Debug("token cache unreadable", "path", c.path, "error", err)
		}
		return Token{}, false
	}

	token, err := parse(string(data))
	if err != nil {
		c.logger.Debug("token cache malformed", "path", c.path, "error", err)
		return Token{}, false
	}

	if !token.Valid(c.now()) {
		c.logger.Debug("cached token expired", "expires_at", token.ExpiresAt)
		return Token{}, false
	}

	return token, true
}

// Save writes token with an expiration of now+ttl and returns the stored Token.
// The file is restricted to the owning user.
func (c *Cache) Save(value string, ttl time.Duration) (Token, error) {
	token := Token{
		Value:     value,
		ExpiresAt: c.now().Add(ttl),
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return Token{}, fmt.Errorf("failed to create token cache directory: %w", err)
		}
	}

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return Token{}, fmt.Errorf("failed to open token cache: %w", err)
	}
	defer f.Close()

	// An existing file keeps its old mode through OpenFile.
	if err := f.Chmod(0600); err != nil {
		return Token{}, fmt.Errorf("failed to restrict token cache permissions: %w", err)
	}

	if _, err := f.WriteString(format(token)); err != nil {
		return Token{}, fmt.Errorf("failed to write token cache: %w", err)
	}

	return token, nil
}

func format(t Token) string {
	seconds := float64(t.ExpiresAt.UnixNano()) / float64(time.Second)
	return t.Value + "\n" + strconv.FormatFloat(seconds, 'f', 6, 64)
}

func parse(content string) (Token, error) {
	lines := strings.Split(strings.TrimRight(content, "\r\n"), "\n")
	if len(lines) != 2 {
		return Token{}, fmt.Errorf("expected 2 lines, got %d", len(lines))
	}

	value := strings.TrimSpace(lines[0])
	if value == "" {
		return Token{}, fmt.Errorf("empty token")
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(lines[1]), 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return Token{}, fmt.Errorf("invalid expiration %q", lines[1])
	}

	whole, frac := math.Modf(seconds)
	return Token{
		Value:     value,
		ExpiresAt: time.Unix(int64(whole), int64(frac*float64(time.Second))),
	}, nil
}
