package reader_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fablemill/fable-go/internal/backend"
	"github.com/fablemill/fable-go/internal/models"
	"github.com/fablemill/fable-go/internal/reader"
	"github.com/fablemill/fable-go/internal/store"
	"github.com/fablemill/fable-go/internal/testutil"
)

func newTestOrchestrator(t *testing.T, be backend.Backend, rec *eventRecorder) (*reader.Orchestrator, *store.Store) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	o := reader.NewOrchestrator(be, st, rec, reader.Options{
		PollInterval:    5 * time.Millisecond,
		PollMaxAttempts: 3,
	})
	t.Cleanup(o.Close)
	return o, st
}

// scrollTo drives the scroll position to the given fraction of a 2000pt
// chapter in a 500pt viewport.
func scrollTo(o *reader.Orchestrator, fraction float64) {
	o.OnScrollUpdate(context.Background(), -fraction*1500, 2000, 500)
}

func TestLoadStorySequencing(t *testing.T) {
	be := newFakeBackend(4)
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)

	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}

	state := o.State()
	if state.Chapter != 1 {
		t.Errorf("Expected to start on chapter 1, got %d", state.Chapter)
	}
	if !state.SessionLive {
		t.Error("Expected an active reading session after load")
	}
	if rec.count(reader.EventStoryLoaded) != 1 {
		t.Errorf("Expected 1 story_loaded event, got %d", rec.count(reader.EventStoryLoaded))
	}
}

func TestLoadStoryResumesFromProgress(t *testing.T) {
	be := newFakeBackend(4)
	rec := &eventRecorder{}
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	if err := st.MarkChapterRead("story-1", 1); err != nil {
		t.Fatalf("MarkChapterRead failed: %v", err)
	}
	if err := st.MarkChapterRead("story-1", 2); err != nil {
		t.Fatalf("MarkChapterRead failed: %v", err)
	}
	o := reader.NewOrchestrator(be, st, rec, reader.Options{})
	t.Cleanup(o.Close)

	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}
	if got := o.State().Chapter; got != 3 {
		t.Errorf("Expected to resume on chapter 3, got %d", got)
	}
}

func TestLoadStoryNotFound(t *testing.T) {
	be := newFakeBackend(1)
	o, _ := newTestOrchestrator(t, be, &eventRecorder{})

	err := o.LoadStory(context.Background(), "missing")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestScrollDoesNotFireOnNonCheckpointChapter(t *testing.T) {
	// Story has chapters 1-2 loaded; scrolling chapter 2 to 95% fires
	// nothing. Moving to chapter 3 then fires chapter_2 exactly once.
	be := newFakeBackend(3)
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}

	if err := o.NextChapter(context.Background()); err != nil { // to chapter 2
		t.Fatalf("NextChapter failed: %v", err)
	}
	scrollTo(o, 0.95)
	if rec.count(reader.EventCheckpointPrompt) != 0 {
		t.Fatal("No checkpoint may fire on chapter 2")
	}

	if err := o.NextChapter(context.Background()); err != nil { // to chapter 3
		t.Fatalf("NextChapter failed: %v", err)
	}
	scrollTo(o, 0.1)
	scrollTo(o, 0.4)

	if rec.count(reader.EventCheckpointPrompt) != 1 {
		t.Fatalf("Expected chapter_2 to fire exactly once, got %d prompts", rec.count(reader.EventCheckpointPrompt))
	}
	prompt, _ := rec.last(reader.EventCheckpointPrompt)
	if prompt.Checkpoint != models.CheckpointChapter2 {
		t.Errorf("Expected checkpoint chapter_2, got %s", prompt.Checkpoint)
	}
}

func TestExistingFeedbackSuppressesPrompt(t *testing.T) {
	// User on chapter 9 triggers chapter_8, but the backend already holds
	// feedback from a previous session: no prompt is displayed.
	be := newFakeBackend(9)
	be.feedback[models.CheckpointChapter8] = true
	be.feedback[models.CheckpointChapter2] = true
	be.feedback[models.CheckpointChapter5] = true
	rec := &eventRecorder{}
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	for n := 1; n <= 8; n++ {
		st.MarkChapterRead("story-1", n)
	}
	o := reader.NewOrchestrator(be, st, rec, reader.Options{})
	t.Cleanup(o.Close)

	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}
	if got := o.State().Chapter; got != 9 {
		t.Fatalf("Expected to resume on chapter 9, got %d", got)
	}
	scrollTo(o, 0.5)

	if rec.count(reader.EventCheckpointPrompt) != 0 {
		t.Errorf("Expected no prompt when feedback already exists, got %d", rec.count(reader.EventCheckpointPrompt))
	}
}

func TestNextChapterGateOnCheckpointChapter(t *testing.T) {
	// User taps next while on chapter 3 before any scroll evaluation: the
	// orchestrator checks feedback status synchronously and shows the
	// prompt instead of advancing.
	be := newFakeBackend(4)
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}
	o.NextChapter(context.Background()) // chapter 2

	// Arriving on chapter 3 fires the prompt via the arrival evaluation.
	o.NextChapter(context.Background()) // chapter 3
	if got := o.State().Chapter; got != 3 {
		t.Fatalf("Expected chapter 3, got %d", got)
	}
	if rec.count(reader.EventCheckpointPrompt) != 1 {
		t.Fatalf("Expected arrival prompt on chapter 3, got %d", rec.count(reader.EventCheckpointPrompt))
	}

	// Tapping next with the checkpoint unresolved must not advance.
	if err := o.NextChapter(context.Background()); err != nil {
		t.Fatalf("NextChapter failed: %v", err)
	}
	if got := o.State().Chapter; got != 3 {
		t.Errorf("Navigation bypassed the checkpoint gate: on chapter %d", got)
	}

	// Submitting feedback unblocks navigation.
	err := o.SubmitFeedback(context.Background(), models.CheckpointChapter2, models.StructuredFeedback{
		Pacing: "keep", Tone: "keep", Character: "keep",
	})
	if err != nil {
		t.Fatalf("SubmitFeedback failed: %v", err)
	}
	if err := o.NextChapter(context.Background()); err != nil {
		t.Fatalf("NextChapter failed: %v", err)
	}
	if got := o.State().Chapter; got != 4 {
		t.Errorf("Expected chapter 4 after feedback, got %d", got)
	}
}

func TestFeedbackCheckFailureDefaultsToPrompt(t *testing.T) {
	// A failed feedback-status check must never silently skip a prompt.
	be := newFakeBackend(3)
	be.feedbackErr = errors.New("backend unreachable")
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}
	o.NextChapter(context.Background())
	o.NextChapter(context.Background()) // arrive chapter 3

	if rec.count(reader.EventCheckpointPrompt) != 1 {
		t.Errorf("Expected prompt despite status-check failure, got %d", rec.count(reader.EventCheckpointPrompt))
	}
}

func TestNextPastLastChapterPolls(t *testing.T) {
	be := newFakeBackend(2)
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}
	o.NextChapter(context.Background()) // chapter 2

	// Generation stays in_progress: the attempt bound surfaces
	// still_generating, not an error.
	if err := o.NextChapter(context.Background()); err != nil {
		t.Fatalf("NextChapter past the end must not fail: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		last, ok := rec.last(reader.EventGenerationStatus)
		return ok && last.Status == reader.StatusStillGenerating
	}, "still_generating status")

	if got := o.State().Chapter; got != 2 {
		t.Errorf("Position must not move while generating, got chapter %d", got)
	}
}

func TestPollReadyAppendsAndAdvances(t *testing.T) {
	be := newFakeBackend(2)
	be.statusFn = func(n int) *backend.GenerationStatusResult {
		return &backend.GenerationStatusResult{
			Status: models.GenerationReady,
			Chapter: &models.Chapter{
				ID: "ch-3", StoryID: "story-1", Number: 3, Title: "Chapter 3",
			},
		}
	}
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}
	o.NextChapter(context.Background()) // chapter 2
	o.NextChapter(context.Background()) // polls for chapter 3

	waitFor(t, time.Second, func() bool { return o.State().Chapter == 3 }, "advance to generated chapter")
	if o.State().ChapterCount != 3 {
		t.Errorf("Expected 3 chapters after generation, got %d", o.State().ChapterCount)
	}
	last, ok := rec.last(reader.EventGenerationStatus)
	if !ok || last.Status != reader.StatusReady {
		t.Errorf("Expected a ready generation_status event, got %+v", last)
	}
}

func TestPollNeedsFeedbackPrompts(t *testing.T) {
	be := newFakeBackend(2)
	be.statusFn = func(n int) *backend.GenerationStatusResult {
		return &backend.GenerationStatusResult{
			Status:     models.GenerationNeedsFeedback,
			Checkpoint: models.CheckpointChapter2,
		}
	}
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}
	o.NextChapter(context.Background()) // chapter 2
	o.NextChapter(context.Background()) // polls, backend wants feedback

	waitFor(t, time.Second, func() bool {
		return rec.count(reader.EventCheckpointPrompt) == 1
	}, "checkpoint prompt from poll")
	prompt, _ := rec.last(reader.EventCheckpointPrompt)
	if prompt.Checkpoint != models.CheckpointChapter2 {
		t.Errorf("Expected chapter_2 prompt, got %s", prompt.Checkpoint)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	be := newFakeBackend(2)
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}

	// Inactive is the brief OS transition state: no session change.
	o.HandleLifecycle(reader.LifecycleInactive)
	if !o.State().SessionLive {
		t.Error("Inactive must not end the session")
	}

	o.HandleLifecycle(reader.LifecycleBackground)
	if o.State().SessionLive {
		t.Error("Background must end the session")
	}
	if be.flushedCount() != 1 {
		t.Errorf("Expected 1 session flush on background, got %d", be.flushedCount())
	}

	// Redundant background signals are safe.
	o.HandleLifecycle(reader.LifecycleBackground)
	if be.flushedCount() != 1 {
		t.Errorf("Redundant background double-flushed: %d", be.flushedCount())
	}

	o.HandleLifecycle(reader.LifecycleForeground)
	if !o.State().SessionLive {
		t.Error("Foreground must restart the session")
	}
}

func TestReloadClearsCheckpointDedup(t *testing.T) {
	be := newFakeBackend(4)
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}
	o.NextChapter(context.Background())
	o.NextChapter(context.Background()) // chapter 3 fires chapter_2
	if rec.count(reader.EventCheckpointPrompt) != 1 {
		t.Fatalf("Expected 1 prompt before reload, got %d", rec.count(reader.EventCheckpointPrompt))
	}

	// A new loadStory restarts the session and clears the dedup set; with
	// no backend feedback recorded the checkpoint may fire again.
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	o.NextChapter(context.Background())
	o.NextChapter(context.Background())
	if rec.count(reader.EventCheckpointPrompt) != 2 {
		t.Errorf("Expected dedup cleared on reload (2 prompts), got %d", rec.count(reader.EventCheckpointPrompt))
	}
}

func TestReloadCancelsActivePoll(t *testing.T) {
	// A poll loop started before a reload belongs to the old session: it
	// must stop issuing network calls and must never move the reloaded
	// session's position.
	be := newFakeBackend(1)
	rec := &eventRecorder{}
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	o := reader.NewOrchestrator(be, st, rec, reader.Options{
		PollInterval:    5 * time.Millisecond,
		PollMaxAttempts: 1000,
	})
	t.Cleanup(o.Close)

	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}
	o.NextChapter(context.Background()) // polls for chapter 2
	waitFor(t, time.Second, func() bool { return be.statusCallCount() > 0 }, "poll loop running")

	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	calls := be.statusCallCount()

	// Chapter 2 becomes ready; only a leaked loop would deliver it.
	be.mu.Lock()
	be.statusFn = func(n int) *backend.GenerationStatusResult {
		return &backend.GenerationStatusResult{
			Status: models.GenerationReady,
			Chapter: &models.Chapter{
				ID: "ch-2", StoryID: "story-1", Number: 2, Title: "Chapter 2",
			},
		}
	}
	be.mu.Unlock()
	time.Sleep(50 * time.Millisecond)

	if got := be.statusCallCount(); got > calls+1 {
		t.Errorf("Poll loop from the previous session kept running after reload: %d -> %d status calls", calls, got)
	}
	if got := o.State().Chapter; got != 1 {
		t.Errorf("Stale poll moved the reloaded session to chapter %d", got)
	}
}

func TestReloadFlushesPriorSession(t *testing.T) {
	be := newFakeBackend(2)
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)

	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}
	if be.flushedCount() != 0 {
		t.Fatalf("Expected no flush on first load, got %d", be.flushedCount())
	}

	// Reloading ends the active session before starting the new one.
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if be.flushedCount() != 1 {
		t.Errorf("Expected the prior session flushed on reload, got %d flushes", be.flushedCount())
	}
	if !o.State().SessionLive {
		t.Error("Expected a fresh live session after reload")
	}

	be.mu.Lock()
	first := be.flushed[0]
	be.mu.Unlock()
	if first.StoryID != "story-1" || first.SessionID == "" {
		t.Errorf("Prior session summary incomplete: %+v", first)
	}
}

func TestScrollQuantization(t *testing.T) {
	be := newFakeBackend(2)
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}

	// Two offsets inside the same integer percent emit one scroll event.
	o.OnScrollUpdate(context.Background(), -150, 2000, 500) // 10%
	o.OnScrollUpdate(context.Background(), -151, 2000, 500) // still 10%
	o.OnScrollUpdate(context.Background(), -165, 2000, 500) // 11%

	if got := rec.count(reader.EventScroll); got != 2 {
		t.Errorf("Expected 2 scroll events after quantization, got %d", got)
	}

	// Positive offsets (overscroll at the top) clamp to 0.
	if f := reader.ScrollFraction(50, 2000, 500); f != 0 {
		t.Errorf("Expected fraction 0 for positive offset, got %f", f)
	}
	// Scrolling past the end clamps to 1.
	if f := reader.ScrollFraction(-5000, 2000, 500); f != 1 {
		t.Errorf("Expected fraction clamped to 1, got %f", f)
	}
	// Content shorter than the viewport divides by the 1-point floor.
	if f := reader.ScrollFraction(-10, 300, 500); f != 1 {
		t.Errorf("Expected fraction 1 for short content with offset, got %f", f)
	}
}

func TestCloseEndsSessionAndPolling(t *testing.T) {
	be := newFakeBackend(1)
	rec := &eventRecorder{}
	o, _ := newTestOrchestrator(t, be, rec)
	if err := o.LoadStory(context.Background(), "story-1"); err != nil {
		t.Fatalf("LoadStory failed: %v", err)
	}
	o.NextChapter(context.Background()) // starts polling for chapter 2

	o.Close()
	if o.State().SessionLive {
		t.Error("Expected session ended after Close")
	}
	if be.flushedCount() != 1 {
		t.Errorf("Expected 1 flush after Close, got %d", be.flushedCount())
	}
}
