// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fablemill/fable-go/internal/core"
	"github.com/fablemill/fable-go/internal/store"
)

// Server holds the dependencies for our API.
type Server struct {
	app   *core.App
	db    *sql.DB
	store *store.Store
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{
		app:   app,
		db:    app.DB(),
		store: app.Store(),
	}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/version", s.handleGetVersion)

	r.Route("/api/stories/{storyID}", func(r chi.Router) {
		r.Post("/open", s.handleOpenStory)
		r.Post("/close", s.handleCloseStory)
		r.Get("/state", s.handleGetState)
		r.Get("/chapter", s.handleGetCurrentChapter)

		// Navigation and scroll updates from the reader view.
		r.Post("/next", s.handleNextChapter)
		r.Post("/previous", s.handlePreviousChapter)
		r.Post("/scroll", s.handleScrollUpdate)
		r.Post("/lifecycle", s.handleLifecycle)

		// Checkpoint feedback.
		r.Post("/feedback/{checkpoint}", s.handleSubmitFeedback)
		r.Post("/feedback/{checkpoint}/freeform", s.handleSubmitFreeformFeedback)

		// Local reading history.
		r.Get("/progress", s.handleGetProgress)
		r.Get("/sessions", s.handleGetSessionLog)

		// First-open onboarding flag.
		r.Get("/onboarding", s.handleGetOnboarding)
		r.Post("/onboarding", s.handleMarkOnboardingSeen)
	})

	// Background job triggers.
	r.Get("/api/jobs/status", s.handleGetJobsStatus)
	r.Post("/api/jobs/run", s.handleRunJob)

	// WebSocket route for the reader event stream.
	r.Get("/ws/events", func(w http.ResponseWriter, r *http.Request) {
		s.app.WsHub().ServeWs(w, r)
	})

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(); err != nil {
			RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
			return
		}
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
