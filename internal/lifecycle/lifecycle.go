// Package lifecycle tracks whether the host application is in the foreground.
//
// A desktop or server process has no lifecycle of its own; the owner drives
// the Tracker from whatever signal it has (SIGUSR1/SIGUSR2 in cmd/feedstail).
package lifecycle

import (
	"log/slog"
	"sync"

	"github.com/rickgao/feeds-realtime/internal/subscription"
)

// Listener receives lifecycle transitions.
type Listener interface {
	OnResumed()
	OnStopped()
}

// Tracker records the application lifecycle and notifies listeners on every
// change. Repeated Resume or Stop calls are not re-announced.
type Tracker struct {
	mu        sync.Mutex
	resumed   bool
	listeners *subscription.Registry[Listener]
	logger    *slog.Logger
}

// NewTracker creates a tracker in the given initial state.
func NewTracker(resumed bool, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "lifecycle")
	return &Tracker{
		resumed:   resumed,
		listeners: subscription.NewRegistry[Listener](logger),
		logger:    logger,
	}
}

// Subscribe registers l and returns a function that removes it.
func (t *Tracker) Subscribe(l Listener) (unsubscribe func()) {
	return t.listeners.Add(l)
}

// IsResumed reports whether the application is in the foreground.
func (t *Tracker) IsResumed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resumed
}

// Resume moves the application to the foreground.
func (t *Tracker) Resume() {
	if !t.set(true) {
		return
	}
	t.logger.Info("application resumed")
	t.listeners.Notify(func(l Listener) { l.OnResumed() })
}

// Stop moves the application to the background.
func (t *Tracker) Stop() {
	if !t.set(false) {
		return
	}
	t.logger.Info("application stopped")
	t.listeners.Notify(func(l Listener) { l.OnStopped() })
}

func (t *Tracker) set(resumed bool) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resumed == resumed {
		return false
	}
	t.resumed = resumed
	return true
}
