package reader

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fablemill/fable-go/internal/backend"
	"github.com/fablemill/fable-go/internal/models"
)

// PollOutcome is the terminal result of one polling loop.
type PollOutcome string

const (
	// PollReady means the expected chapter now exists.
	PollReady PollOutcome = "ready"
	// PollNeedsFeedback means a checkpoint must be resolved before
	// generation proceeds.
	PollNeedsFeedback PollOutcome = "needs_feedback"
	// PollStillGenerating means the attempt bound was exhausted while the
	// backend kept reporting in-progress. Soft outcome, never a failure.
	PollStillGenerating PollOutcome = "still_generating"
)

// PollResult is delivered to the orchestrator exactly once per poll loop.
type PollResult struct {
	Outcome       PollOutcome
	ChapterNumber int
	Checkpoint    models.Checkpoint
	Chapter       *models.Chapter
}

// Poller watches the backend for a chapter that does not exist yet. At most
// one poll loop runs at a time; starting a new one cancels the previous
// loop, and Stop ties the loop's lifetime to the reader view.
type Poller struct {
	generation  backend.GenerationService
	interval    time.Duration
	maxAttempts int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller with the given cadence and attempt bound.
func NewPoller(generation backend.GenerationService, interval time.Duration, maxAttempts int) *Poller {
	return &Poller{
		generation:  generation,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// RequestNext begins polling for the expected chapter of a story. The
// `have` callback reports whether a chapter number is already present in
// the chapter store; when it is, the poller reports ready immediately
// without a network call. deliver is invoked exactly once, from the polling
// goroutine, unless the loop is cancelled first.
func (p *Poller) RequestNext(ctx context.Context, storyID string, expected int, have func(int) bool, deliver func(PollResult)) {
	if have(expected) {
		deliver(PollResult{Outcome: PollReady, ChapterNumber: expected})
		return
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.loop(pollCtx, storyID, expected, have, deliver)
	}()
}

// Stop cancels any active poll loop and waits for it to exit. No orphaned
// polling loops may persist past view teardown.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context, storyID string, expected int, have func(int) bool, deliver func(PollResult)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		// The chapter may have arrived through another path between polls.
		if have(expected) {
			deliver(PollResult{Outcome: PollReady, ChapterNumber: expected})
			return
		}

		result, err := p.generation.GetChapterGenerationStatus(ctx, storyID, expected)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient failure: log and keep polling within the bound.
			log.Printf("Generation status check failed for story %s chapter %d: %v", storyID, expected, err)
		} else {
			switch result.Status {
			case models.GenerationReady:
				deliver(PollResult{Outcome: PollReady, ChapterNumber: expected, Chapter: result.Chapter})
				return
			case models.GenerationNeedsFeedback:
				deliver(PollResult{Outcome: PollNeedsFeedback, ChapterNumber: expected, Checkpoint: result.Checkpoint})
				return
			}
			// in_progress: keep polling.
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	// Generation may legitimately take longer than any fixed bound; the
	// orchestrator presents this as "still being generated, check back".
	deliver(PollResult{Outcome: PollStillGenerating, ChapterNumber: expected})
}
