// Shared test server setup utilities, which simplify all API tests.

package testutil

import (
	"testing"

	"github.com/fablemill/fable-go/internal/api"
	"github.com/fablemill/fable-go/internal/config"
	"github.com/fablemill/fable-go/internal/core"
)

// SetupTestApp creates a core.App backed by an in-memory database and a
// stub backend holding one story with the given number of chapters.
func SetupTestApp(t *testing.T, chapterCount int) (*core.App, *StubBackend) {
	t.Helper()
	database := SetupTestDB(t)

	cfg := &config.Config{}
	cfg.Poll.IntervalSeconds = 1
	cfg.Poll.MaxAttempts = 3
	cfg.Session.IdleMinutes = 30

	stub := NewStubBackend("story-1", chapterCount)
	app := core.NewApp(cfg, database, stub, "test")
	t.Cleanup(app.Close)
	return app, stub
}

// SetupTestServer initializes a full core.App and api.Server for
// integration testing.
func SetupTestServer(t *testing.T, chapterCount int) (*api.Server, *core.App, *StubBackend) {
	t.Helper()
	app, stub := SetupTestApp(t, chapterCount)
	server := api.NewServer(app)
	return server, app, stub
}
