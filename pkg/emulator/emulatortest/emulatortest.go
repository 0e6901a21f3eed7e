// Package emulatortest starts the emulated API inside tests.
package emulatortest

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/shunichi-ikebuchi/bl-docs/pkg/emulator"
)

// Harness is a running emulator.
type Harness struct {
	*emulator.Server
	URL      string
	Fixtures *emulator.Fixtures
}

// Start runs an emulator for the duration of the test.
// A nil fixtures value serves emulator.DemoFixtures().
func Start(t testing.TB, fixtures *emulator.Fixtures, opts ...emulator.Option) *Harness {
	t.Helper()

	if fixtures == nil {
		fixtures = emulator.DemoFixtures()
	}

	st, err := emulator.OpenStore(filepath.Join(t.TempDir(), "emulator.db"))
	if err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	srv := emulator.New(st, fixtures, opts...)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &Harness{Server: srv, URL: ts.URL, Fixtures: fixtures}
}
