package reader_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fablemill/fable-go/internal/backend"
	"github.com/fablemill/fable-go/internal/models"
	"github.com/fablemill/fable-go/internal/reader"
)

// fakeBackend implements backend.Backend in memory for reader tests.
type fakeBackend struct {
	mu sync.Mutex

	story    *models.Story
	chapters []*models.Chapter

	// statusFn decides generation status per chapter number; nil means
	// always in_progress.
	statusFn    func(chapterNumber int) *backend.GenerationStatusResult
	statusCalls int

	feedback    map[models.Checkpoint]bool
	feedbackErr error

	submitted []models.Checkpoint
	flushed   []models.SessionSummary

	freeformGenerating bool
}

func newFakeBackend(chapterCount int) *fakeBackend {
	b := &fakeBackend{
		story:    &models.Story{ID: "story-1", Title: "The Glass Orchard", Status: "active"},
		feedback: make(map[models.Checkpoint]bool),
	}
	for i := 1; i <= chapterCount; i++ {
		b.chapters = append(b.chapters, &models.Chapter{
			ID:      fmt.Sprintf("ch-%d", i),
			StoryID: "story-1",
			Number:  i,
			Title:   fmt.Sprintf("Chapter %d", i),
			Content: "words",
		})
	}
	return b
}

func (b *fakeBackend) LoadStory(ctx context.Context, storyID string) (*models.Story, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if storyID != b.story.ID {
		return nil, backend.ErrNotFound
	}
	return b.story, nil
}

func (b *fakeBackend) ListChapters(ctx context.Context, storyID string) ([]*models.Chapter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*models.Chapter, len(b.chapters))
	copy(out, b.chapters)
	return out, nil
}

func (b *fakeBackend) GetChapterGenerationStatus(ctx context.Context, storyID string, chapterNumber int) (*backend.GenerationStatusResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusCalls++
	if b.statusFn != nil {
		return b.statusFn(chapterNumber), nil
	}
	return &backend.GenerationStatusResult{Status: models.GenerationInProgress}, nil
}

func (b *fakeBackend) GetFeedbackStatus(ctx context.Context, storyID string, cp models.Checkpoint) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.feedbackErr != nil {
		return false, b.feedbackErr
	}
	return b.feedback[cp], nil
}

func (b *fakeBackend) SubmitFeedback(ctx context.Context, storyID string, cp models.Checkpoint, feedback models.StructuredFeedback) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedback[cp] = true
	b.submitted = append(b.submitted, cp)
	return nil
}

func (b *fakeBackend) SubmitFreeformFeedback(ctx context.Context, storyID string, cp models.Checkpoint, feedback models.FreeformFeedback) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedback[cp] = true
	b.submitted = append(b.submitted, cp)
	return b.freeformGenerating, nil
}

func (b *fakeBackend) FlushSession(ctx context.Context, summary models.SessionSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushed = append(b.flushed, summary)
	return nil
}

func (b *fakeBackend) statusCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCalls
}

func (b *fakeBackend) flushedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.flushed)
}

// eventRecorder collects orchestrator events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []reader.Event
}

func (r *eventRecorder) Publish(e reader.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []reader.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]reader.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) count(typ reader.EventType) int {
	n := 0
	for _, e := range r.all() {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(typ reader.EventType) (reader.Event, bool) {
	events := r.all()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == typ {
			return events[i], true
		}
	}
	return reader.Event{}, false
}

// waitFor polls a condition until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for: %s", msg)
}
