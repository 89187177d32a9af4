package reader

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fablemill/fable-go/internal/backend"
	"github.com/fablemill/fable-go/internal/models"
)

// SessionLog records flushed session summaries locally. The durable store
// implements it; a nil log disables local recording.
type SessionLog interface {
	LogSession(summary models.SessionSummary) error
}

const flushTimeout = 5 * time.Second

// Tracker measures wall-clock time and scroll depth for one story's reading
// session. Idle -> Active -> Idle, reusable across stories. Start and End
// are idempotent and safe to invoke redundantly from multiple lifecycle
// signals; the second call observes the state left by the first.
type Tracker struct {
	mu        sync.Mutex
	analytics backend.Analytics
	local     SessionLog

	active      bool
	sessionID   string
	storyID     string
	startedAt   time.Time
	lastChapter int
	lastPercent int
	lastUpdate  time.Time
}

// NewTracker creates a session tracker flushing to the given analytics
// collaborator.
func NewTracker(analytics backend.Analytics, local SessionLog) *Tracker {
	return &Tracker{analytics: analytics, local: local}
}

// Start transitions Idle -> Active and records the start time. Calling
// Start while already Active is a no-op; the repeated foreground case must
// not reset the recorded start time.
func (t *Tracker) Start(storyID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return
	}
	t.active = true
	t.sessionID = uuid.NewString()
	t.storyID = storyID
	t.startedAt = time.Now()
	t.lastUpdate = t.startedAt
	t.lastChapter = 0
	t.lastPercent = 0
	log.Printf("Reading session %s started for story %s", t.sessionID, storyID)
}

// Active reports whether a session is currently running.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// StartedAt returns the start time of the current session, zero when Idle.
func (t *Tracker) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// LastUpdate returns the time of the most recent progress update, used by
// the idle sweep.
func (t *Tracker) LastUpdate() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastUpdate
}

// UpdateProgress records the position the reader has reached. Updates
// arriving while Idle are ignored.
func (t *Tracker) UpdateProgress(chapterNumber, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.lastChapter = chapterNumber
	t.lastPercent = percent
	t.lastUpdate = time.Now()
}

// End transitions Active -> Idle, computes the elapsed duration and hands
// the summary to the analytics collaborator. The flush is fire-and-forget:
// failures are logged, never surfaced, and End never panics into the
// caller. Calling End while Idle is a no-op.
func (t *Tracker) End() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	summary := models.SessionSummary{
		SessionID:   t.sessionID,
		StoryID:     t.storyID,
		StartedAt:   t.startedAt,
		Duration:    time.Since(t.startedAt),
		LastChapter: t.lastChapter,
		LastPercent: t.lastPercent,
	}
	t.active = false
	t.startedAt = time.Time{}
	t.mu.Unlock()

	if t.local != nil {
		if err := t.local.LogSession(summary); err != nil {
			log.Printf("Failed to log session %s locally: %v", summary.SessionID, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := t.analytics.FlushSession(ctx, summary); err != nil {
		log.Printf("Failed to flush session %s: %v", summary.SessionID, err)
	}
}
