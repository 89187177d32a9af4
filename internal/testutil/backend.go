package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/fablemill/fable-go/internal/backend"
	"github.com/fablemill/fable-go/internal/models"
)

// StubBackend is an in-memory backend.Backend for tests that exercise the
// layers above the reader core. Fields may be mutated before the stub is
// handed to the code under test; afterwards use the accessor methods.
type StubBackend struct {
	mu sync.Mutex

	Story    *models.Story
	Chapters []*models.Chapter
	Feedback map[models.Checkpoint]bool

	// StatusFunc decides generation status per chapter number; nil means
	// always in_progress.
	StatusFunc func(chapterNumber int) *backend.GenerationStatusResult

	sessions []models.SessionSummary
}

// NewStubBackend creates a stub with one story and the given number of
// contiguous chapters.
func NewStubBackend(storyID string, chapterCount int) *StubBackend {
	s := &StubBackend{
		Story:    &models.Story{ID: storyID, Title: "Test Story", Status: "active"},
		Feedback: make(map[models.Checkpoint]bool),
	}
	for i := 1; i <= chapterCount; i++ {
		s.Chapters = append(s.Chapters, &models.Chapter{
			ID:      fmt.Sprintf("%s-ch-%d", storyID, i),
			StoryID: storyID,
			Number:  i,
			Title:   fmt.Sprintf("Chapter %d", i),
			Content: "test content",
		})
	}
	return s
}

func (s *StubBackend) LoadStory(ctx context.Context, storyID string) (*models.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Story == nil || storyID != s.Story.ID {
		return nil, backend.ErrNotFound
	}
	return s.Story, nil
}

func (s *StubBackend) ListChapters(ctx context.Context, storyID string) ([]*models.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Chapter, len(s.Chapters))
	copy(out, s.Chapters)
	return out, nil
}

func (s *StubBackend) GetChapterGenerationStatus(ctx context.Context, storyID string, chapterNumber int) (*backend.GenerationStatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StatusFunc != nil {
		return s.StatusFunc(chapterNumber), nil
	}
	return &backend.GenerationStatusResult{Status: models.GenerationInProgress}, nil
}

func (s *StubBackend) GetFeedbackStatus(ctx context.Context, storyID string, cp models.Checkpoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Feedback[cp], nil
}

func (s *StubBackend) SubmitFeedback(ctx context.Context, storyID string, cp models.Checkpoint, feedback models.StructuredFeedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Feedback[cp] = true
	return nil
}

func (s *StubBackend) SubmitFreeformFeedback(ctx context.Context, storyID string, cp models.Checkpoint, feedback models.FreeformFeedback) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Feedback[cp] = true
	return false, nil
}

func (s *StubBackend) FlushSession(ctx context.Context, summary models.SessionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, summary)
	return nil
}

// FlushedSessions returns a copy of the session summaries flushed so far.
func (s *StubBackend) FlushedSessions() []models.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SessionSummary, len(s.sessions))
	copy(out, s.sessions)
	return out
}
