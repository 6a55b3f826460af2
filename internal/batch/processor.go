// Package batch coalesces bursts of items into batches.
//
// The first item after an idle period opens a window; the batch is handed to
// the OnBatch callback when the window closes or MaxSize items have
// accumulated, whichever comes first. Batches are delivered one at a time,
// in order, on a single goroutine owned by the processor.
package batch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/feeds-realtime/internal/subscription"
)

// Config configures a Processor.
type Config struct {
	Window  time.Duration // how long the first item of a batch may wait
	MaxSize int           // flush early at this many items, 0 for no limit
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Window:  100 * time.Millisecond,
		MaxSize: 100,
	}
}

// Handler receives a batch, how long its first item waited and the number
// of items in it.
type Handler[T any] func(batch []T, delay time.Duration, count int)

type pending[T any] struct {
	gen      uint64
	items    []T
	openedAt time.Time
}

// Processor batches items of type T.
type Processor[T any] struct {
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	handler  Handler[T]
	running  bool
	gen      uint64
	items    []T
	openedAt time.Time
	timer    *time.Timer
	out      *subscription.Queue[pending[T]]
}

// NewProcessor creates a stopped processor.
func NewProcessor[T any](cfg Config, logger *slog.Logger) *Processor[T] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &Processor[T]{
		config: cfg,
		logger: logger.With("component", "batch"),
	}
}

// OnBatch sets the batch callback. Only one callback is kept.
func (p *Processor[T]) OnBatch(h Handler[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// Start begins accepting items. Calling Start while running is a no-op.
func (p *Processor[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.gen++
	p.out = subscription.NewQueue[pending[T]](8)
	go p.deliver(p.out, p.gen)
}

// Stop discards buffered items and stops delivery. A batch already being
// delivered runs to completion; Stop does not wait for it, so it is safe to
// call from the batch callback.
func (p *Processor[T]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if n := len(p.items); n > 0 {
		p.logger.Debug("dropping buffered items on stop", "count", n)
	}
	p.items = nil
	p.out.Close()
}

// Running reports whether the processor accepts items.
func (p *Processor[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// OnMessage adds item to the open batch. It returns false if the processor
// is stopped.
func (p *Processor[T]) OnMessage(item T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return false
	}

	if len(p.items) == 0 {
		p.openedAt = time.Now()
		gen := p.gen
		p.timer = time.AfterFunc(p.config.Window, func() { p.windowClosed(gen) })
	}
	p.items = append(p.items, item)

	if p.config.MaxSize > 0 && len(p.items) >= p.config.MaxSize {
		p.flushLocked()
	}
	return true
}

func (p *Processor[T]) windowClosed(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen || !p.running || len(p.items) == 0 {
		return
	}
	p.flushLocked()
}

// Must be called with lock held.
func (p *Processor[T]) flushLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.out.Push(pending[T]{gen: p.gen, items: p.items, openedAt: p.openedAt})
	p.items = nil
}

func (p *Processor[T]) deliver(out *subscription.Queue[pending[T]], gen uint64) {
	for {
		b, ok := out.Pop()
		if !ok {
			return
		}

		p.mu.Lock()
		handler := p.handler
		stale := p.gen != gen
		p.mu.Unlock()

		if stale {
			return
		}
		if handler != nil {
			handler(b.items, time.Since(b.openedAt), len(b.items))
		}
	}
}
