// Package backend defines the contract with the remote story generation
// service. The reader core only ever talks to these interfaces; the HTTP
// client in this package is the production implementation.
package backend

import (
	"context"
	"errors"

	"github.com/fablemill/fable-go/internal/models"
)

var (
	ErrNotFound     = errors.New("story not found")
	ErrUnauthorized = errors.New("not authorized for this story")
)

// GenerationStatusResult is the backend's answer for a chapter that may or
// may not exist yet. Chapter is set only when Status is GenerationReady;
// Checkpoint is set only when Status is GenerationNeedsFeedback.
type GenerationStatusResult struct {
	Status     models.GenerationStatus `json:"status"`
	Checkpoint models.Checkpoint       `json:"checkpoint,omitempty"`
	Chapter    *models.Chapter         `json:"chapter,omitempty"`
}

// StoryService loads stories and their currently available chapters.
type StoryService interface {
	LoadStory(ctx context.Context, storyID string) (*models.Story, error)
	ListChapters(ctx context.Context, storyID string) ([]*models.Chapter, error)
}

// GenerationService reports chapter generation status for polling.
type GenerationService interface {
	GetChapterGenerationStatus(ctx context.Context, storyID string, chapterNumber int) (*GenerationStatusResult, error)
}

// FeedbackService answers whether checkpoint feedback was already submitted
// and accepts new submissions. Submissions are never retried automatically.
type FeedbackService interface {
	GetFeedbackStatus(ctx context.Context, storyID string, checkpoint models.Checkpoint) (bool, error)
	SubmitFeedback(ctx context.Context, storyID string, checkpoint models.Checkpoint, feedback models.StructuredFeedback) error
	SubmitFreeformFeedback(ctx context.Context, storyID string, checkpoint models.Checkpoint, feedback models.FreeformFeedback) (generatingChapters bool, err error)
}

// Analytics receives reading-session summaries, fire-and-forget.
type Analytics interface {
	FlushSession(ctx context.Context, summary models.SessionSummary) error
}

// Backend is the full collaborator surface the orchestrator consumes.
type Backend interface {
	StoryService
	GenerationService
	FeedbackService
	Analytics
}
