// Package recovery drives automatic reconnection of a feeds socket from
// lifecycle, network and connection state signals.
//
// Reconnect attempts are gated by All(network, lifecycle, connection state)
// and spaced by a retry.Strategy. At most one attempt is scheduled at a time.
// Losing the network does not disconnect the socket; the transport observes
// the failure itself and the resulting Disconnected state schedules the
// retry.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/feeds-realtime/internal/lifecycle"
	"github.com/rickgao/feeds-realtime/internal/network"
	"github.com/rickgao/feeds-realtime/internal/policy"
	"github.com/rickgao/feeds-realtime/internal/retry"
	"github.com/rickgao/feeds-realtime/internal/socket"
	"github.com/rickgao/feeds-realtime/internal/state"
)

// ErrAttemptTimeout is the cause recorded when a reconnect attempt runs past
// Config.AttemptTimeout.
var ErrAttemptTimeout = errors.New("reconnect attempt timed out")

// Connector is the part of socket.Socket the handler drives.
type Connector interface {
	State() state.State
	Reconnect(ctx context.Context) (state.State, error)
	Disconnect(src state.Source)
	SubscribeState(l socket.StateListener) (unsubscribe func())
}

// NetworkSource reports and announces connectivity.
type NetworkSource interface {
	IsConnected() bool
	Subscribe(l network.Listener) (unsubscribe func())
}

// LifecycleSource reports and announces application lifecycle changes.
type LifecycleSource interface {
	IsResumed() bool
	Subscribe(l lifecycle.Listener) (unsubscribe func())
}

// Scheduler runs fn after d and returns a function cancelling it.
type Scheduler func(d time.Duration, fn func()) (cancel func() bool)

func afterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Config configures a Handler.
type Config struct {
	KeepAliveInBackground bool          // stay connected while the application is stopped
	AttemptTimeout        time.Duration // bound on a single reconnect attempt
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AttemptTimeout: 30 * time.Second,
	}
}

// Handler reconnects a socket when its policy allows.
type Handler struct {
	cfg       Config
	sock      Connector
	network   NetworkSource
	lifecycle LifecycleSource
	strategy  *retry.Strategy
	signals   policy.Policy // network and lifecycle only
	policy    policy.Policy
	schedule  Scheduler
	logger    *slog.Logger

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	cancelTimer  func() bool
	timerPending bool
	timerGen     uint64
	unsubscribe  []func()
}

// NewHandler creates a handler. Call Start to begin observing signals.
func NewHandler(cfg Config, sock Connector, net NetworkSource, lc LifecycleSource, strategy *retry.Strategy, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if strategy == nil {
		strategy = retry.NewStrategy()
	}
	signals := policy.All(policy.Network(net), policy.Lifecycle(lc))
	return &Handler{
		cfg:       cfg,
		sock:      sock,
		network:   net,
		lifecycle: lc,
		strategy:  strategy,
		signals:   signals,
		policy:    policy.All(signals, policy.ConnectionState(sock)),
		schedule:  afterFunc,
		logger:    logger.With("component", "recovery"),
	}
}

// Start subscribes to the socket, network and lifecycle. Reconnect attempts
// run under ctx.
func (h *Handler) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		return
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.unsubscribe = []func(){
		h.sock.SubscribeState(h.onState),
		h.network.Subscribe(networkListener{h}),
		h.lifecycle.Subscribe(lifecycleListener{h}),
	}
	h.logger.Info("recovery handler started", "keep_alive_in_background", h.cfg.KeepAliveInBackground)
}

// Stop unsubscribes, cancels a pending retry and aborts in-flight attempts.
func (h *Handler) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	unsubscribe := h.unsubscribe
	h.cancel = nil
	h.unsubscribe = nil
	h.cancelPendingLocked()
	h.mu.Unlock()

	for _, u := range unsubscribe {
		u()
	}
	if cancel != nil {
		cancel()
		h.logger.Info("recovery handler stopped")
	}
}

// Pending reports whether a reconnect attempt is scheduled.
func (h *Handler) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timerPending
}

// Strategy returns the retry strategy spacing the attempts.
func (h *Handler) Strategy() *retry.Strategy { return h.strategy }

func (h *Handler) onState(st state.State) {
	switch st.Kind {
	case state.Connecting:
		h.mu.Lock()
		h.cancelPendingLocked()
		h.mu.Unlock()
	case state.Connected:
		h.strategy.ResetConsecutiveFailures()
	case state.Disconnected:
		// The transition itself decides, not whatever the socket moved to since.
		if !st.IsAutomaticReconnectionEnabled() || !h.signals.ShouldReconnect() {
			h.logger.Debug("not scheduling reconnect", "state", st.String())
			return
		}
		h.strategy.IncrementConsecutiveFailures()
		delay := h.strategy.NextRetryDelay()
		h.scheduleReconnect(delay)
	}
}

func (h *Handler) onResumed() {
	h.reconnectIfAllowed("application resumed")
}

func (h *Handler) onStopped() {
	if h.cfg.KeepAliveInBackground {
		return
	}
	st := h.sock.State()
	if st.IsConnecting() || st.IsConnected() {
		h.logger.Info("disconnecting for background", "state", st.String())
		h.sock.Disconnect(state.BySystem())
	}
}

func (h *Handler) onNetworkAvailable() {
	h.reconnectIfAllowed("network available")
}

func (h *Handler) reconnectIfAllowed(reason string) {
	if !h.policy.ShouldReconnect() {
		return
	}
	h.mu.Lock()
	h.cancelPendingLocked()
	h.mu.Unlock()

	h.logger.Info("reconnecting", "reason", reason)
	h.attempt()
}

func (h *Handler) scheduleReconnect(delay time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel == nil {
		return
	}
	h.cancelPendingLocked()

	h.timerGen++
	gen := h.timerGen
	fired := func() {
		h.mu.Lock()
		if !h.timerPending || h.timerGen != gen {
			h.mu.Unlock()
			return
		}
		h.timerPending = false
		h.cancelTimer = nil
		h.mu.Unlock()

		// Signals may have changed while waiting.
		if !h.policy.ShouldReconnect() {
			return
		}
		h.attempt()
	}
	h.cancelTimer = h.schedule(delay, fired)
	h.timerPending = true

	h.logger.Info("reconnect scheduled",
		"delay", delay,
		"consecutive_failures", h.strategy.ConsecutiveFailures(),
	)
}

// Must be called with lock held.
func (h *Handler) cancelPendingLocked() {
	if h.cancelTimer != nil {
		h.cancelTimer()
	}
	h.cancelTimer = nil
	h.timerPending = false
}

// attempt reconnects on a new goroutine so signal callbacks never block.
func (h *Handler) attempt() {
	h.mu.Lock()
	parent := h.ctx
	h.mu.Unlock()
	if parent == nil || parent.Err() != nil {
		return
	}

	go func() {
		ctx := parent
		if h.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeoutCause(parent, h.cfg.AttemptTimeout, ErrAttemptTimeout)
			defer cancel()
		}
		if _, err := h.sock.Reconnect(ctx); err != nil {
			h.logger.Warn("reconnect failed", "error", err)
		}
	}()
}

type networkListener struct{ h *Handler }

func (l networkListener) OnAvailable() { l.h.onNetworkAvailable() }

// Network loss is left to the transport's own failure path.
func (l networkListener) OnLost() {}

type lifecycleListener struct{ h *Handler }

func (l lifecycleListener) OnResumed() { l.h.onResumed() }
func (l lifecycleListener) OnStopped() { l.h.onStopped() }
