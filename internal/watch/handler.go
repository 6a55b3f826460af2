// Package watch tracks the feeds a client watches and re-issues the watch
// requests every time the socket connects.
package watch

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/feeds-realtime/internal/model"
	"github.com/rickgao/feeds-realtime/internal/socket"
	"github.com/rickgao/feeds-realtime/internal/state"
)

// Watcher issues a watch request for one feed on one connection.
type Watcher interface {
	WatchFeed(ctx context.Context, fid model.FeedID, connectionID string) error
}

// StateSubscriber announces connection state changes.
type StateSubscriber interface {
	SubscribeState(l socket.StateListener) (unsubscribe func())
}

// Config configures a Handler.
type Config struct {
	Concurrency int           // parallel watch requests per rehydration
	Timeout     time.Duration // bound on a whole rehydration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 8,
		Timeout:     30 * time.Second,
	}
}

// Handler keeps the watched-feed set.
type Handler struct {
	cfg     Config
	watcher Watcher
	logger  *slog.Logger

	mu      sync.Mutex
	watched map[model.FeedID]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()
	wg     sync.WaitGroup
}

// NewHandler creates a handler issuing requests through w.
func NewHandler(cfg Config, w Watcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	return &Handler{
		cfg:     cfg,
		watcher: w,
		logger:  logger.With("component", "watch"),
		watched: make(map[model.FeedID]struct{}),
	}
}

// OnStartWatching adds fid to the watched set.
func (h *Handler) OnStartWatching(fid model.FeedID) {
	h.mu.Lock()
	h.watched[fid] = struct{}{}
	h.mu.Unlock()
}

// OnStopWatching removes fid from the watched set.
func (h *Handler) OnStopWatching(fid model.FeedID) {
	h.mu.Lock()
	delete(h.watched, fid)
	h.mu.Unlock()
}

// IsWatched reports whether fid is in the watched set.
func (h *Handler) IsWatched(fid model.FeedID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.watched[fid]
	return ok
}

// Watched returns a sorted snapshot of the watched set.
func (h *Handler) Watched() []model.FeedID {
	h.mu.Lock()
	out := make([]model.FeedID, 0, len(h.watched))
	for fid := range h.watched {
		out = append(out, fid)
	}
	h.mu.Unlock()

	slices.SortFunc(out, func(a, b model.FeedID) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// Start rehydrates the watched set on every Connected state of sock.
func (h *Handler) Start(ctx context.Context, sock StateSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.unsub = sock.SubscribeState(h.onState)
}

// Stop unsubscribes and waits for in-flight rehydrations.
func (h *Handler) Stop() {
	h.mu.Lock()
	cancel, unsub := h.cancel, h.unsub
	h.ctx, h.cancel, h.unsub = nil, nil, nil
	h.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

func (h *Handler) onState(st state.State) {
	if !st.IsConnected() {
		return
	}
	h.mu.Lock()
	// A dispatch already in flight when Stop ran must not start work.
	ctx := h.ctx
	if ctx == nil || h.cancel == nil {
		h.mu.Unlock()
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		h.Rehydrate(ctx, st.ConnectionID)
	}()
}

// Rehydrate issues a watch request for every watched feed on connectionID
// and returns the number of failed requests. Failures are logged only.
func (h *Handler) Rehydrate(ctx context.Context, connectionID string) (failed int) {
	feeds := h.Watched()
	if len(feeds) == 0 {
		return 0
	}
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	logger := h.logger.With("connection_id", connectionID)
	logger.Info("rewatching feeds", "count", len(feeds))

	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(h.cfg.Concurrency)
	for _, fid := range feeds {
		group.Go(func() error {
			if err := h.watcher.WatchFeed(ctx, fid, connectionID); err != nil {
				logger.Warn("rewatch failed", "fid", fid.String(), "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	return failed
}
