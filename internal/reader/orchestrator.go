package reader

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/fablemill/fable-go/internal/backend"
	"github.com/fablemill/fable-go/internal/models"
	"github.com/fablemill/fable-go/internal/store"
)

// LifecycleEvent is an app lifecycle transition forwarded by the
// presentation layer.
type LifecycleEvent string

const (
	LifecycleForeground LifecycleEvent = "foreground"
	LifecycleBackground LifecycleEvent = "background"
	// LifecycleInactive is the brief OS transition state; it causes no
	// session state change.
	LifecycleInactive LifecycleEvent = "inactive"
)

// Options configures an Orchestrator.
type Options struct {
	PollInterval    time.Duration
	PollMaxAttempts int
}

// Orchestrator owns the chapter store, reading position, checkpoint record
// and polling state for one story. All mutation happens under one mutex:
// no two operations may concurrently append chapters or fire checkpoints.
type Orchestrator struct {
	mu sync.Mutex

	be      backend.Backend
	local   *store.Store
	notify  Notifier
	store   *Store
	poller  *Poller
	tracker *Tracker

	storyID string

	// ReadingPosition: 0-based chapter index, raw offset and the derived
	// percentage quantized to whole points.
	index   int
	offset  float64
	percent int

	// Session-scoped checkpoint record. fired prevents duplicate
	// evaluation; resolved marks checkpoints whose feedback the backend
	// already holds. Both are cleared on LoadStory.
	fired    map[models.Checkpoint]bool
	resolved map[models.Checkpoint]bool

	// Prompt display is serialized even when the underlying checks are
	// concurrent: one visible prompt at a time, later ones deferred.
	promptActive  bool
	activePrompt  models.Checkpoint
	pendingPrompt []models.Checkpoint
}

// NewOrchestrator wires an orchestrator from its collaborators. localStore
// may not be nil; it provides resume positions, durable progress and the
// local session log.
func NewOrchestrator(be backend.Backend, localStore *store.Store, notify Notifier, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.PollMaxAttempts <= 0 {
		opts.PollMaxAttempts = 20
	}
	o := &Orchestrator{
		be:     be,
		local:  localStore,
		notify: notify,
	}
	o.store = NewStore(be, localStore)
	o.poller = NewPoller(be, opts.PollInterval, opts.PollMaxAttempts)
	o.tracker = NewTracker(be, localStore)
	return o
}

// LoadStory loads the story, starts a reading session and runs one
// checkpoint pass for the restored position. Loading restarts the session:
// any previous session is ended and flushed, its poll loop cancelled, and
// the checkpoint dedup set cleared; the backend remains the authority for
// feedback already submitted in previous sessions.
func (o *Orchestrator) LoadStory(ctx context.Context, storyID string) error {
	// Stop outside the mutex: Stop waits for the poll loop, which may be
	// mid-delivery into onPollResult and needs the mutex to finish.
	o.poller.Stop()
	o.tracker.End()

	o.mu.Lock()
	defer o.mu.Unlock()

	index, err := o.store.Load(ctx, storyID)
	if err != nil {
		return err
	}

	o.storyID = storyID
	o.index = index
	o.offset = 0
	o.percent = 0
	o.fired = make(map[models.Checkpoint]bool)
	o.resolved = make(map[models.Checkpoint]bool)
	o.promptActive = false
	o.activePrompt = ""
	o.pendingPrompt = nil

	o.tracker.Start(storyID)
	o.publish(Event{Type: EventStoryLoaded, StoryID: storyID, Chapter: o.currentChapterNumber()})
	o.evaluateCheckpointLocked(ctx, 0)
	return nil
}

// Story returns the loaded story, or nil.
func (o *Orchestrator) Story() *models.Story {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Story()
}

// CurrentChapter returns the chapter at the reading position.
func (o *Orchestrator) CurrentChapter() (*models.Chapter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.storyID == "" {
		return nil, ErrNoStory
	}
	return o.store.ChapterAt(o.index)
}

// currentChapterNumber is the 1-based number of the current chapter.
// Callers must hold the mutex.
func (o *Orchestrator) currentChapterNumber() int {
	return o.index + 1
}

// NextChapter advances the reading position. On a checkpoint chapter the
// feedback gate is re-checked synchronously first: the gate must never be
// bypassable by navigation shortcuts. Moving past the last known chapter
// starts generation polling instead of failing.
func (o *Orchestrator) NextChapter(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.storyID == "" {
		return ErrNoStory
	}

	current := o.currentChapterNumber()
	if cp, ok := CheckpointForChapter(current); ok && !o.resolved[cp] {
		has, err := o.be.GetFeedbackStatus(ctx, o.storyID, cp)
		if err != nil {
			// Safe default: assume feedback is still needed.
			log.Printf("Feedback status check failed for %s/%s: %v", o.storyID, cp, err)
			has = false
		}
		if has {
			o.resolved[cp] = true
		} else {
			o.fired[cp] = true
			o.promptLocked(cp)
			return nil
		}
	}

	if o.index+1 < o.store.ChapterCount() {
		// Leaving a chapter forward marks it read.
		o.persistProgress(current, 100, true)
		o.index++
		o.onChapterChangedLocked(ctx)
		return nil
	}

	// The next chapter does not exist yet: poll for it.
	o.startPollLocked(ctx, o.store.ChapterCount()+1)
	return nil
}

// PreviousChapter moves the reading position back one chapter. At the first
// chapter it is a no-op.
func (o *Orchestrator) PreviousChapter(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.storyID == "" {
		return ErrNoStory
	}
	if o.index == 0 {
		return nil
	}
	o.index--
	o.onChapterChangedLocked(ctx)
	return nil
}

// OnScrollUpdate converts a raw scroll offset into a quantized scroll
// percentage and feeds the checkpoint evaluator and session tracker.
// Updates that do not change the integer percentage are dropped to prevent
// oscillation-driven redundant work.
func (o *Orchestrator) OnScrollUpdate(ctx context.Context, rawOffset, contentHeight, visibleHeight float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.storyID == "" {
		return
	}

	fraction := ScrollFraction(rawOffset, contentHeight, visibleHeight)
	percent := int(math.Round(fraction * 100))
	if percent == o.percent {
		o.offset = rawOffset
		return
	}

	o.offset = rawOffset
	o.percent = percent
	chapter := o.currentChapterNumber()

	o.tracker.UpdateProgress(chapter, percent)
	o.persistProgress(chapter, percent, percent >= 100)
	o.publish(Event{Type: EventScroll, StoryID: o.storyID, Chapter: chapter, Percent: percent})
	o.evaluateCheckpointLocked(ctx, fraction)
}

// ScrollFraction normalizes a raw scroll offset into [0,1]. The offset goes
// negative as content scrolls up; content shorter than the viewport divides
// by a 1-point floor so any scroll registers as fully read.
func ScrollFraction(rawOffset, contentHeight, visibleHeight float64) float64 {
	scrolled := math.Max(-rawOffset, 0)
	span := math.Max(contentHeight-visibleHeight, 1)
	fraction := scrolled / span
	return math.Min(math.Max(fraction, 0), 1)
}

// HandleLifecycle reconciles session state with app lifecycle transitions.
// Redundant signals are safe; inactive is deliberately ignored.
func (o *Orchestrator) HandleLifecycle(event LifecycleEvent) {
	o.mu.Lock()
	storyID := o.storyID
	o.mu.Unlock()
	if storyID == "" {
		return
	}

	switch event {
	case LifecycleForeground:
		o.tracker.Start(storyID)
	case LifecycleBackground:
		o.tracker.End()
		o.publish(Event{Type: EventSessionEnded, StoryID: storyID})
	case LifecycleInactive:
		// No state change for the brief OS transition state.
	}
}

// SubmitFeedback sends the structured checkpoint feedback record. On
// success the prompt is resolved and, if generation was waiting on this
// checkpoint, polling resumes. Failures are returned once and never
// retried automatically: silent retries on writes risk duplicates.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, checkpoint models.Checkpoint, feedback models.StructuredFeedback) error {
	if err := o.be.SubmitFeedback(ctx, o.StoryID(), checkpoint, feedback); err != nil {
		return err
	}
	o.resolvePrompt(ctx, checkpoint, true)
	return nil
}

// SubmitFreeformFeedback sends the free-text checkpoint response variant.
func (o *Orchestrator) SubmitFreeformFeedback(ctx context.Context, checkpoint models.Checkpoint, feedback models.FreeformFeedback) error {
	generating, err := o.be.SubmitFreeformFeedback(ctx, o.StoryID(), checkpoint, feedback)
	if err != nil {
		return err
	}
	o.resolvePrompt(ctx, checkpoint, generating)
	return nil
}

// StoryID returns the id of the loaded story, empty when none.
func (o *Orchestrator) StoryID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.storyID
}

// EndIfIdle ends the reading session when no progress update has arrived
// within the threshold. Used by the session sweep job as the
// server-observed analog of an app-background transition.
func (o *Orchestrator) EndIfIdle(threshold time.Duration) bool {
	if !o.tracker.Active() {
		return false
	}
	if time.Since(o.tracker.LastUpdate()) < threshold {
		return false
	}
	o.tracker.End()
	o.publish(Event{Type: EventSessionEnded, StoryID: o.StoryID()})
	return true
}

// Close tears the orchestrator down: polling is cancelled and the session
// ends. Safe to call more than once.
func (o *Orchestrator) Close() {
	o.poller.Stop()
	o.tracker.End()
}

// Snapshot is the orchestrator state the API surface exposes.
type Snapshot struct {
	Story        *models.Story     `json:"story"`
	ChapterCount int               `json:"chapter_count"`
	Chapter      int               `json:"chapter"`
	Percent      int               `json:"percent"`
	PromptActive bool              `json:"prompt_active"`
	Checkpoint   models.Checkpoint `json:"checkpoint,omitempty"`
	SessionLive  bool              `json:"session_live"`
}

// State returns a point-in-time snapshot for the presentation layer.
func (o *Orchestrator) State() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		Story:        o.store.Story(),
		ChapterCount: o.store.ChapterCount(),
		Chapter:      o.currentChapterNumber(),
		Percent:      o.percent,
		PromptActive: o.promptActive,
		Checkpoint:   o.activePrompt,
		SessionLive:  o.tracker.Active(),
	}
}

// --- internal coordination, callers hold the mutex unless noted ---

func (o *Orchestrator) onChapterChangedLocked(ctx context.Context) {
	o.offset = 0
	o.percent = 0
	chapter := o.currentChapterNumber()
	o.tracker.UpdateProgress(chapter, 0)
	o.publish(Event{Type: EventChapterChanged, StoryID: o.storyID, Chapter: chapter})
	o.evaluateCheckpointLocked(ctx, 0)
}

// evaluateCheckpointLocked runs the two-layer check: the pure evaluator
// with the session-local dedup set, then the backend's authoritative
// feedback record. Only a checkpoint the backend has no feedback for
// produces a visible prompt.
func (o *Orchestrator) evaluateCheckpointLocked(ctx context.Context, fraction float64) {
	cp, ok := EvaluateCheckpoint(o.currentChapterNumber(), fraction, o.fired)
	if !ok {
		return
	}
	o.fired[cp] = true

	if o.resolved[cp] {
		return
	}
	has, err := o.be.GetFeedbackStatus(ctx, o.storyID, cp)
	if err != nil {
		// Safe default: a failed check must never silently skip a prompt.
		log.Printf("Feedback status check failed for %s/%s: %v", o.storyID, cp, err)
		has = false
	}
	if has {
		o.resolved[cp] = true
		return
	}
	o.promptLocked(cp)
}

func (o *Orchestrator) promptLocked(cp models.Checkpoint) {
	if o.promptActive {
		if o.activePrompt == cp {
			return
		}
		for _, pending := range o.pendingPrompt {
			if pending == cp {
				return
			}
		}
		o.pendingPrompt = append(o.pendingPrompt, cp)
		return
	}
	o.promptActive = true
	o.activePrompt = cp
	o.publish(Event{Type: EventCheckpointPrompt, StoryID: o.storyID, Checkpoint: cp})
}

// resolvePrompt marks a checkpoint resolved after a successful feedback
// submission and resumes whatever the prompt was holding up.
func (o *Orchestrator) resolvePrompt(ctx context.Context, cp models.Checkpoint, resume bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.resolved[cp] = true
	if o.activePrompt == cp {
		o.promptActive = false
		o.activePrompt = ""
		if len(o.pendingPrompt) > 0 {
			next := o.pendingPrompt[0]
			o.pendingPrompt = o.pendingPrompt[1:]
			o.promptLocked(next)
		}
	}

	// A checkpoint can gate generation; with feedback in, poll again for
	// the chapter the reader is waiting on.
	if resume && o.index+1 >= o.store.ChapterCount() {
		o.startPollLocked(ctx, o.store.ChapterCount()+1)
	}
}

func (o *Orchestrator) startPollLocked(ctx context.Context, expected int) {
	o.publish(Event{Type: EventGenerationStatus, StoryID: o.storyID, Chapter: expected, Status: StatusGenerating})
	// The poll loop outlives this call; detach it from the request context.
	o.poller.RequestNext(context.WithoutCancel(ctx), o.storyID, expected, o.store.HasChapter, o.onPollResult)
}

// onPollResult resumes on the coordination context after a poll loop ends.
// Runs on the polling goroutine.
func (o *Orchestrator) onPollResult(result PollResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch result.Outcome {
	case PollReady:
		if result.Chapter != nil && !o.store.HasChapter(result.Chapter.Number) {
			if err := o.store.AppendChapter(result.Chapter); err != nil {
				log.Printf("Dropping out-of-order chapter %d for story %s: %v", result.Chapter.Number, o.storyID, err)
				return
			}
		}
		if !o.store.HasChapter(result.ChapterNumber) {
			// Ready without a chapter payload: refresh the collection.
			o.refreshChaptersLocked(result.ChapterNumber)
		}
		if o.store.HasChapter(result.ChapterNumber) {
			o.persistProgress(o.currentChapterNumber(), 100, true)
			o.index = result.ChapterNumber - 1
			o.publish(Event{Type: EventGenerationStatus, StoryID: o.storyID, Chapter: result.ChapterNumber, Status: StatusReady})
			o.onChapterChangedLocked(context.Background())
		}
	case PollNeedsFeedback:
		cp := result.Checkpoint
		if cp == "" {
			// The backend wants feedback but did not say which checkpoint;
			// derive it from the chapter being generated.
			if derived, ok := CheckpointForChapter(result.ChapterNumber); ok {
				cp = derived
			}
		}
		if cp != "" && !o.resolved[cp] {
			o.fired[cp] = true
			o.promptLocked(cp)
		}
	case PollStillGenerating:
		o.publish(Event{Type: EventGenerationStatus, StoryID: o.storyID, Chapter: result.ChapterNumber, Status: StatusStillGenerating})
	}
}

// refreshChaptersLocked fetches the chapter list again and appends any
// chapters that arrived since the last load, up to wanted.
func (o *Orchestrator) refreshChaptersLocked(wanted int) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	chapters, err := o.be.ListChapters(ctx, o.storyID)
	if err != nil {
		log.Printf("Failed to refresh chapters for story %s: %v", o.storyID, err)
		return
	}
	for _, ch := range chapters {
		if ch.Number <= o.store.ChapterCount() || ch.Number > wanted {
			continue
		}
		if err := o.store.AppendChapter(ch); err != nil {
			log.Printf("Failed to append refreshed chapter %d for story %s: %v", ch.Number, o.storyID, err)
			return
		}
	}
}

// persistProgress writes durable progress, logging failures only: local
// persistence must never break the reading experience.
func (o *Orchestrator) persistProgress(chapter, percent int, read bool) {
	if err := o.local.UpsertChapterProgress(o.storyID, chapter, percent, read); err != nil {
		log.Printf("Failed to persist progress for story %s chapter %d: %v", o.storyID, chapter, err)
	}
}

func (o *Orchestrator) publish(event Event) {
	if o.notify != nil {
		o.notify.Publish(event)
	}
}
