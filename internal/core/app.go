package core

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/fablemill/fable-go/internal/backend"
	"github.com/fablemill/fable-go/internal/config"
	"github.com/fablemill/fable-go/internal/db"
	"github.com/fablemill/fable-go/internal/jobs"
	"github.com/fablemill/fable-go/internal/reader"
	"github.com/fablemill/fable-go/internal/store"
	"github.com/fablemill/fable-go/internal/websocket"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	config  *config.Config
	db      *sql.DB
	wsHub   *websocket.Hub
	backend backend.Backend
	store   *store.Store
	readers *reader.Manager
	version string

	jobManager *jobs.JobManager
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, running migrations
// and wiring the reader manager to the story backend.
func New(version string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	client := backend.NewClient(cfg.Backend.BaseURL, time.Duration(cfg.Backend.TimeoutSeconds)*time.Second)
	app := NewApp(cfg, database, client, version)

	log.Println("Core application setup complete.")
	return app, nil
}

// NewApp assembles an App from already constructed components. Tests use
// it to inject an in-memory database and a stub backend.
func NewApp(cfg *config.Config, database *sql.DB, be backend.Backend, version string) *App {
	hub := websocket.NewHub()
	go hub.Run()

	st := store.New(database)
	readers := reader.NewManager(be, st, eventNotifier(hub), reader.Options{
		PollInterval:    time.Duration(cfg.Poll.IntervalSeconds) * time.Second,
		PollMaxAttempts: cfg.Poll.MaxAttempts,
	})

	return &App{
		config:  cfg,
		db:      database,
		wsHub:   hub,
		backend: be,
		store:   st,
		readers: readers,
		version: version,
	}
}

// eventNotifier pushes reader events to websocket clients as JSON.
func eventNotifier(hub *websocket.Hub) reader.Notifier {
	return reader.NotifierFunc(func(e reader.Event) {
		data, err := json.Marshal(e)
		if err != nil {
			log.Printf("Failed to marshal reader event %s: %v", e.Type, err)
			return
		}
		hub.Broadcast <- data
	})
}

func (a *App) Config() *config.Config   { return a.config }
func (a *App) DB() *sql.DB              { return a.db }
func (a *App) WsHub() *websocket.Hub    { return a.wsHub }
func (a *App) Backend() backend.Backend { return a.backend }
func (a *App) Store() *store.Store      { return a.store }
func (a *App) Readers() *reader.Manager { return a.readers }
func (a *App) Version() string          { return a.version }

// JobManager returns the background job manager, nil until SetJobManager
// runs during startup.
func (a *App) JobManager() *jobs.JobManager { return a.jobManager }

// SetJobManager attaches the background job manager. The jobs package
// constructs its manager around the app, so this runs after New.
func (a *App) SetJobManager(jm *jobs.JobManager) { a.jobManager = jm }

// Close gracefully closes the application's resources: open reading
// sessions are ended and flushed before the DB connection closes.
func (a *App) Close() {
	if a.readers != nil {
		a.readers.CloseAll()
	}
	if a.db != nil {
		a.db.Close()
	}
}
