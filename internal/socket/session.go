package socket

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rickgao/feeds-realtime/internal/batch"
	"github.com/rickgao/feeds-realtime/internal/events"
	"github.com/rickgao/feeds-realtime/internal/health"
	"github.com/rickgao/feeds-realtime/internal/state"
)

// handshake resolves a Connect exactly once.
type handshake struct {
	done     chan struct{}
	resolved atomic.Bool
	st       state.State
	err      error
}

func newHandshake() *handshake {
	return &handshake{done: make(chan struct{})}
}

func (h *handshake) resolve(st state.State, err error) bool {
	if !h.resolved.CompareAndSwap(false, true) {
		return false
	}
	h.st = st
	h.err = err
	close(h.done)
	return true
}

// session is one transport connection and the helpers bound to it.
type session struct {
	id        string
	logger    *slog.Logger
	handshake *handshake
	health    *health.Monitor
	batcher   *batch.Processor[events.Event]

	unsubscribe func()
	releaseOnce sync.Once
	ended       chan struct{}
}

func newSession(cfg Config, logger *slog.Logger) *session {
	id := uuid.NewString()
	logger = logger.With("session_id", id)
	return &session{
		id:        id,
		logger:    logger,
		handshake: newHandshake(),
		health:    health.NewMonitor(cfg.Health, logger),
		batcher:   batch.NewProcessor[events.Event](cfg.Batch, logger),
		ended:     make(chan struct{}),
	}
}

// release stops the session helpers and detaches it from the transport.
func (s *session) release() {
	s.releaseOnce.Do(func() {
		s.health.Stop()
		s.batcher.Stop()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(s.ended)
	})
}
