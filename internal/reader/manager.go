package reader

import (
	"context"
	"sync"
	"time"

	"github.com/fablemill/fable-go/internal/backend"
	"github.com/fablemill/fable-go/internal/store"
)

// Manager keeps one orchestrator per open story. Opening a story that is
// already open returns the existing orchestrator with its session state
// intact.
type Manager struct {
	mu            sync.Mutex
	be            backend.Backend
	local         *store.Store
	notify        Notifier
	opts          Options
	orchestrators map[string]*Orchestrator
}

// NewManager creates a manager producing orchestrators with the given
// collaborators.
func NewManager(be backend.Backend, local *store.Store, notify Notifier, opts Options) *Manager {
	return &Manager{
		be:            be,
		local:         local,
		notify:        notify,
		opts:          opts,
		orchestrators: make(map[string]*Orchestrator),
	}
}

// Open returns the orchestrator for a story, loading the story first when
// it is not open yet.
func (m *Manager) Open(ctx context.Context, storyID string) (*Orchestrator, error) {
	m.mu.Lock()
	if o, ok := m.orchestrators[storyID]; ok {
		m.mu.Unlock()
		// Re-opening an already open story re-arms the session; Start is
		// idempotent when it is still running.
		o.HandleLifecycle(LifecycleForeground)
		return o, nil
	}
	m.mu.Unlock()

	o := NewOrchestrator(m.be, m.local, m.notify, m.opts)
	if err := o.LoadStory(ctx, storyID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.orchestrators[storyID]; ok {
		// Lost the race to another open; keep the first one.
		o.Close()
		return existing, nil
	}
	m.orchestrators[storyID] = o
	return o, nil
}

// Get returns the orchestrator for a story if it is open.
func (m *Manager) Get(storyID string) (*Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orchestrators[storyID]
	return o, ok
}

// Close tears down the orchestrator for a story, ending its session and
// cancelling any polling.
func (m *Manager) Close(storyID string) {
	m.mu.Lock()
	o, ok := m.orchestrators[storyID]
	delete(m.orchestrators, storyID)
	m.mu.Unlock()
	if ok {
		o.Close()
	}
}

// CloseAll tears down every open orchestrator, used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]*Orchestrator, 0, len(m.orchestrators))
	for _, o := range m.orchestrators {
		open = append(open, o)
	}
	m.orchestrators = make(map[string]*Orchestrator)
	m.mu.Unlock()
	for _, o := range open {
		o.Close()
	}
}

// SweepIdle ends sessions with no progress updates within the threshold
// and returns how many were ended.
func (m *Manager) SweepIdle(threshold time.Duration) int {
	m.mu.Lock()
	open := make([]*Orchestrator, 0, len(m.orchestrators))
	for _, o := range m.orchestrators {
		open = append(open, o)
	}
	m.mu.Unlock()

	ended := 0
	for _, o := range open {
		if o.EndIfIdle(threshold) {
			ended++
		}
	}
	return ended
}
