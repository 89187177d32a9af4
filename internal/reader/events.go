package reader

import "github.com/fablemill/fable-go/internal/models"

// EventType enumerates the state changes the orchestrator publishes for the
// presentation layer.
type EventType string

const (
	EventStoryLoaded      EventType = "story_loaded"
	EventChapterChanged   EventType = "chapter_changed"
	EventScroll           EventType = "scroll"
	EventGenerationStatus EventType = "generation_status"
	EventCheckpointPrompt EventType = "checkpoint_prompt"
	EventSessionEnded     EventType = "session_ended"
)

// Generation status values carried by EventGenerationStatus. A poll that
// exhausts its attempt bound reports "still_generating" rather than an
// error; the experience degrades to "come back later".
const (
	StatusGenerating      = "generating"
	StatusReady           = "ready"
	StatusStillGenerating = "still_generating"
)

// Event is a single orchestrator state change. Only the fields relevant to
// the event type are set.
type Event struct {
	Type       EventType         `json:"type"`
	StoryID    string            `json:"story_id"`
	Chapter    int               `json:"chapter,omitempty"`
	Percent    int               `json:"percent,omitempty"`
	Status     string            `json:"status,omitempty"`
	Checkpoint models.Checkpoint `json:"checkpoint,omitempty"`
}

// Notifier receives orchestrator events for delivery to the presentation
// layer. Implementations must not block; the websocket hub adapter queues.
type Notifier interface {
	Publish(event Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

func (f NotifierFunc) Publish(event Event) { f(event) }
