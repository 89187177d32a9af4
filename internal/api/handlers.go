package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fablemill/fable-go/internal/backend"
	"github.com/fablemill/fable-go/internal/models"
	"github.com/fablemill/fable-go/internal/reader"
)

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": s.app.Version()})
}

// orchestrator resolves the open orchestrator for the story in the URL.
// Writes the error response itself when the story is not open.
func (s *Server) orchestrator(w http.ResponseWriter, r *http.Request) (*reader.Orchestrator, bool) {
	storyID := chi.URLParam(r, "storyID")
	o, ok := s.app.Readers().Get(storyID)
	if !ok {
		RespondWithError(w, http.StatusNotFound, "Story is not open")
		return nil, false
	}
	return o, true
}

// checkpointParam validates the checkpoint identifier in the URL.
func checkpointParam(w http.ResponseWriter, r *http.Request) (models.Checkpoint, bool) {
	cp := models.Checkpoint(chi.URLParam(r, "checkpoint"))
	switch cp {
	case models.CheckpointChapter2, models.CheckpointChapter5,
		models.CheckpointChapter8, models.CheckpointBookComplete:
		return cp, true
	}
	RespondWithError(w, http.StatusBadRequest, "Unknown checkpoint")
	return "", false
}

func (s *Server) handleOpenStory(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	o, err := s.app.Readers().Open(r.Context(), storyID)
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrNotFound):
			RespondWithError(w, http.StatusNotFound, "Story not found")
		case errors.Is(err, backend.ErrUnauthorized):
			RespondWithError(w, http.StatusUnauthorized, "Not authorized for this story")
		default:
			RespondWithError(w, http.StatusBadGateway, "Failed to load story")
		}
		return
	}
	RespondWithJSON(w, http.StatusOK, o.State())
}

func (s *Server) handleCloseStory(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	s.app.Readers().Close(storyID)
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	RespondWithJSON(w, http.StatusOK, o.State())
}

func (s *Server) handleGetCurrentChapter(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	chapter, err := o.CurrentChapter()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to read current chapter")
		return
	}
	RespondWithJSON(w, http.StatusOK, chapter)
}

func (s *Server) handleNextChapter(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	if err := o.NextChapter(r.Context()); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to advance chapter")
		return
	}
	RespondWithJSON(w, http.StatusOK, o.State())
}

func (s *Server) handlePreviousChapter(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	if err := o.PreviousChapter(r.Context()); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to move back a chapter")
		return
	}
	RespondWithJSON(w, http.StatusOK, o.State())
}

func (s *Server) handleScrollUpdate(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	var payload struct {
		Offset        float64 `json:"offset"`
		ContentHeight float64 `json:"content_height"`
		VisibleHeight float64 `json:"visible_height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid scroll payload")
		return
	}
	o.OnScrollUpdate(r.Context(), payload.Offset, payload.ContentHeight, payload.VisibleHeight)
	RespondWithJSON(w, http.StatusOK, o.State())
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	var payload struct {
		Event reader.LifecycleEvent `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid lifecycle payload")
		return
	}
	switch payload.Event {
	case reader.LifecycleForeground, reader.LifecycleBackground, reader.LifecycleInactive:
	default:
		RespondWithError(w, http.StatusBadRequest, "Unknown lifecycle event")
		return
	}
	o.HandleLifecycle(payload.Event)
	RespondWithJSON(w, http.StatusOK, o.State())
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	cp, ok := checkpointParam(w, r)
	if !ok {
		return
	}
	var feedback models.StructuredFeedback
	if err := json.NewDecoder(r.Body).Decode(&feedback); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid feedback payload")
		return
	}
	if err := o.SubmitFeedback(r.Context(), cp, feedback); err != nil {
		RespondWithError(w, http.StatusBadGateway, "Failed to submit feedback")
		return
	}
	RespondWithJSON(w, http.StatusOK, o.State())
}

func (s *Server) handleSubmitFreeformFeedback(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	cp, ok := checkpointParam(w, r)
	if !ok {
		return
	}
	var feedback models.FreeformFeedback
	if err := json.NewDecoder(r.Body).Decode(&feedback); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid feedback payload")
		return
	}
	if err := o.SubmitFreeformFeedback(r.Context(), cp, feedback); err != nil {
		RespondWithError(w, http.StatusBadGateway, "Failed to submit feedback")
		return
	}
	RespondWithJSON(w, http.StatusOK, o.State())
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	progress, err := s.store.GetStoryProgress(storyID)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to read progress")
		return
	}
	RespondWithJSON(w, http.StatusOK, progress)
}

func (s *Server) handleGetSessionLog(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	sessions, err := s.store.GetSessionLog(storyID)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to read session log")
		return
	}
	RespondWithJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetOnboarding(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	seen, err := s.store.HasSeenOnboarding(storyID)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to read onboarding state")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]bool{"seen": seen})
}

func (s *Server) handleMarkOnboardingSeen(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	if err := s.store.MarkOnboardingSeen(storyID); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to record onboarding")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]bool{"seen": true})
}

func (s *Server) handleGetJobsStatus(w http.ResponseWriter, r *http.Request) {
	jm := s.app.JobManager()
	if jm == nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Job manager not running")
		return
	}
	RespondWithJSON(w, http.StatusOK, jm.GetStatus())
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	jm := s.app.JobManager()
	if jm == nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Job manager not running")
		return
	}
	var payload struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid job payload")
		return
	}
	if err := jm.RunJob(payload.JobID, s.app); err != nil {
		RespondWithError(w, http.StatusConflict, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
