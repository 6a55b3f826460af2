// Package network detects internet availability by periodically dialing a
// well-known TCP endpoint.
package network

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rickgao/feeds-realtime/internal/subscription"
)

// Listener receives connectivity transitions.
type Listener interface {
	OnAvailable()
	OnLost()
}

// Config configures a Prober.
type Config struct {
	Address  string        // host:port dialed on every probe
	Interval time.Duration // time between probes
	Timeout  time.Duration // dial timeout
}

// DefaultConfig returns a Config probing the feeds edge over HTTPS.
func DefaultConfig() Config {
	return Config{
		Address:  "feeds.stream-io-api.com:443",
		Interval: 10 * time.Second,
		Timeout:  3 * time.Second,
	}
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Prober tracks connectivity. It starts out assuming the network is
// available so the first connect is not gated on a probe.
type Prober struct {
	config    Config
	dial      dialFunc
	listeners *subscription.Registry[Listener]
	logger    *slog.Logger

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewProber creates a prober. Call Start to begin probing.
func NewProber(cfg Config, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "network")
	d := &net.Dialer{Timeout: cfg.Timeout}
	return &Prober{
		config:    cfg,
		dial:      d.DialContext,
		listeners: subscription.NewRegistry[Listener](logger),
		logger:    logger,
		connected: true,
	}
}

// Subscribe registers l and returns a function that removes it.
func (p *Prober) Subscribe(l Listener) (unsubscribe func()) {
	return p.listeners.Add(l)
}

// IsConnected reports the result of the latest probe.
func (p *Prober) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Start runs a probe immediately and then on every interval until ctx is
// done or Stop is called. Calling Start while running is a no-op.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)
}

// Stop halts probing and waits for the probe goroutine to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *Prober) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

// Probe dials the configured address once and records the outcome.
func (p *Prober) Probe(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	conn, err := p.dial(dialCtx, "tcp", p.config.Address)
	if err != nil {
		if ctx.Err() != nil {
			return p.IsConnected()
		}
		p.logger.Debug("probe failed", "address", p.config.Address, "error", err)
		p.set(false)
		return false
	}
	conn.Close()
	p.set(true)
	return true
}

func (p *Prober) set(connected bool) {
	p.mu.Lock()
	changed := p.connected != connected
	p.connected = connected
	p.mu.Unlock()

	if !changed {
		return
	}
	if connected {
		p.logger.Info("network available")
		p.listeners.Notify(func(l Listener) { l.OnAvailable() })
	} else {
		p.logger.Warn("network lost", "address", p.config.Address)
		p.listeners.Notify(func(l Listener) { l.OnLost() })
	}
}
