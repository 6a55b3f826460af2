// Package health implements the socket liveness monitor.
//
// The monitor wakes up every Interval. If no Ack has been recorded within
// LivenessThreshold it reports the connection as dead, otherwise it asks the
// owner to send a heartbeat.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config configures a Monitor.
type Config struct {
	Interval          time.Duration // Heartbeat period
	LivenessThreshold time.Duration // Max time without an ack before the connection is dead
}

// DefaultConfig returns the production heartbeat settings.
func DefaultConfig() Config {
	return Config{
		Interval:          25 * time.Second,
		LivenessThreshold: 60 * time.Second,
	}
}

// Monitor runs the heartbeat loop for one socket session.
type Monitor struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	lastAck     time.Time
	breached    bool
	cancel      context.CancelFunc
	gen         uint64
	onInterval  func()
	onThreshold func()
}

// NewMonitor creates a stopped Monitor.
func NewMonitor(cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.LivenessThreshold <= 0 {
		cfg.LivenessThreshold = DefaultConfig().LivenessThreshold
	}
	return &Monitor{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// OnInterval sets the action run on each healthy tick (send a heartbeat).
func (m *Monitor) OnInterval(fn func()) {
	m.mu.Lock()
	m.onInterval = fn
	m.mu.Unlock()
}

// OnLivenessThreshold sets the action run when the liveness threshold is exceeded.
func (m *Monitor) OnLivenessThreshold(fn func()) {
	m.mu.Lock()
	m.onThreshold = fn
	m.mu.Unlock()
}

// Ack records a liveness signal.
func (m *Monitor) Ack() {
	m.mu.Lock()
	m.lastAck = m.now()
	m.breached = false
	m.mu.Unlock()
}

// LastAck returns the time of the most recent liveness signal.
func (m *Monitor) LastAck() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAck
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Start begins the heartbeat loop. It is a no-op if the loop is already running.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.gen++
	m.lastAck = m.now()
	m.breached = false

	go m.run(ctx, m.gen)

	m.logger.Debug("health monitor started",
		"interval", m.cfg.Interval,
		"liveness_threshold", m.cfg.LivenessThreshold,
	)
}

// Stop cancels the loop. Once Stop returns no further callback is started;
// a callback already in progress runs to completion.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.gen++
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.logger.Debug("health monitor stopped")
}

func (m *Monitor) run(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if fn := m.check(gen); fn != nil {
			fn()
		}
	}
}

// check decides what the tick of loop gen should do. It returns nil when the
// loop has been stopped or there is nothing to run.
func (m *Monitor) check(gen uint64) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return nil
	}

	if m.now().Sub(m.lastAck) > m.cfg.LivenessThreshold {
		if m.breached {
			return nil
		}
		m.breached = true
		m.logger.Warn("liveness threshold exceeded",
			"last_ack", m.lastAck,
			"threshold", m.cfg.LivenessThreshold,
		)
		return m.onThreshold
	}
	return m.onInterval
}
