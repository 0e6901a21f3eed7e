package tokencache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestCache(t *testing.T) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "token_cache.txt")
	return New(path, WithClock(clock.Now)), clock
}

func TestSaveThenLoad(t *testing.T) {
	cache, _ := newTestCache(t)

	if _, err := cache.Save("abc.def.ghi", time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	token, ok := cache.Load()
	if !ok {
		t.Fatal("Load() returned miss after Save()")
	}
	if token.Value != "abc.def.ghi" {
		t.Errorf("Load() token = %q, expected %q", token.Value, "abc.def.ghi")
	}
}

func TestLoadMissingFile(t *testing.T) {
	cache, _ := newTestCache(t)

	if _, ok := cache.Load(); ok {
		t.Error("Load() returned hit for missing file")
	}
}

func TestExpiryBoundary(t *testing.T) {
	cache, clock := newTestCache(t)

	if _, err := cache.Save("tok", time.Second); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, ok := cache.Load(); !ok {
		t.Error("Load() at now: expected valid token")
	}

	clock.t = clock.t.Add(2 * time.Second)
	if _, ok := cache.Load(); ok {
		t.Error("Load() at now+2s: expected expired token")
	}
}

func TestLoadAtExactExpirationIsMiss(t *testing.T) {
	cache, clock := newTestCache(t)

	if _, err := cache.Save("tok", time.Minute); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	clock.t = clock.t.Add(time.Minute)
	if _, ok := cache.Load(); ok {
		t.Error("Load() at expiration instant: expected miss")
	}
}

func TestLoadCorruptFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"single line", "tok"},
		{"bad float", "tok\nsoon"},
		{"blank token", " \n9999999999"},
		{"extra lines", "tok\n9999999999\nmore"},
		{"nan", "tok\nNaN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, _ := newTestCache(t)
			if err := os.WriteFile(cache.Path(), []byte(tt.content), 0600); err != nil {
				t.Fatalf("failed to write cache: %v", err)
			}

			if _, ok := cache.Load(); ok {
				t.Errorf("Load() returned hit for %q", tt.content)
			}
		})
	}
}

func TestLoadReadsPythonStyleFile(t *testing.T) {
	cache, _ := newTestCache(t)
	content := "legacy-token\n1705316400.5"
	if err := os.WriteFile(cache.Path(), []byte(content), 0600); err != nil {
		t.Fatalf("failed to write cache: %v", err)
	}

	token, ok := cache.Load()
	if !ok {
		t.Fatal("Load() returned miss for valid file")
	}
	expected := time.Unix(1705316400, 500_000_000)
	if !token.ExpiresAt.Equal(expected) {
		t.Errorf("ExpiresAt = %v, expected %v", token.ExpiresAt, expected)
	}
}

func TestSaveRestrictsPermissions(t *testing.T) {
	cache, _ := newTestCache(t)

	// Pre-existing world-readable file must be tightened.
	if err := os.WriteFile(cache.Path(), []byte("old"), 0644); err != nil {
		t.Fatalf("failed to write cache: %v", err)
	}

	if _, err := cache.Save("tok", time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(cache.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, expected 600", perm)
	}
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "token")
	cache := New(path)

	if _, err := cache.Save("tok", time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, ok := cache.Load(); !ok {
		t.Error("Load() returned miss after Save() into nested directory")
	}
}
