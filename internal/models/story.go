// This file defines the core data structures (models) for the application.
// These structs represent the stories and chapters produced by the remote
// generation backend, plus the reading-session records derived from them.

package models

import (
	"strings"
	"time"
)

// Story represents a single story owned by a user. Everything except Status
// and Progress is immutable once loaded; those two are refreshed by polling.
type Story struct {
	ID         string              `json:"id"`
	Title      string              `json:"title"`
	UserID     string              `json:"user_id"`
	Status     string              `json:"status"`
	Progress   *GenerationProgress `json:"progress,omitempty"` // omitempty hides it when not generating
	SeriesID   string              `json:"series_id,omitempty"`
	BookNumber int                 `json:"book_number,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// GenerationProgress is a live snapshot of the backend's chapter generation
// pipeline for a story. It is never persisted client-side.
type GenerationProgress struct {
	CurrentStep string `json:"current_step"`
}

// IsGenerating reports whether the backend is actively producing chapters.
// Generation steps are prefixed "generating_" (e.g. "generating_chapter_4").
func (p *GenerationProgress) IsGenerating() bool {
	return p != nil && strings.HasPrefix(p.CurrentStep, "generating_")
}

// Chapter represents a single chapter of a story. Chapters are created once
// by the backend and never mutated client-side; the chapter list is
// append-only with contiguous 1-based numbers.
type Chapter struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"story_id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"-"` // Hide from JSON responses
}

// GenerationStatus is the backend's answer when asked about a chapter that
// may or may not exist yet.
type GenerationStatus string

const (
	GenerationReady         GenerationStatus = "ready"
	GenerationInProgress    GenerationStatus = "in_progress"
	GenerationNeedsFeedback GenerationStatus = "needs_feedback"
)

// SessionSummary is the record handed to the analytics collaborator when a
// reading session ends.
type SessionSummary struct {
	SessionID   string        `json:"session_id"`
	StoryID     string        `json:"story_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	LastChapter int           `json:"last_chapter"`
	LastPercent int           `json:"last_percent"`
}
