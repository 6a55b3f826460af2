package socket

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/feeds-realtime/internal/batch"
	"github.com/rickgao/feeds-realtime/internal/events"
	"github.com/rickgao/feeds-realtime/internal/health"
	"github.com/rickgao/feeds-realtime/internal/model"
	"github.com/rickgao/feeds-realtime/internal/state"
	"github.com/rickgao/feeds-realtime/internal/transport"
)

// Errors
var (
	ErrClosed           = errors.New("socket closed")
	ErrDisconnecting    = errors.New("socket is disconnecting")
	ErrNoUser           = errors.New("no user to reconnect")
	ErrConnectionClosed = errors.New("connection closed during handshake")
	ErrServerRejected   = errors.New("server rejected connection")
	ErrHandshakeTimeout = errors.New("handshake timed out")
)

// Socket is a feeds realtime connection.
type Socket interface {
	// Connect opens and authenticates a connection for user. It returns the
	// current state immediately when already connected, and joins the
	// in-flight handshake when one is running.
	Connect(ctx context.Context, user model.UserDetails) (state.State, error)

	// Reconnect connects again with the user of the last Connect.
	Reconnect(ctx context.Context) (state.State, error)

	// Disconnect closes the connection. The terminal Disconnected state
	// carries src.
	Disconnect(src state.Source)

	// State returns a snapshot of the connection state.
	State() state.State

	// Me returns the user snapshot received with the last connection.ok.
	Me() *model.OwnUser

	// SubscribeState registers l for state transitions.
	SubscribeState(l StateListener) (unsubscribe func())

	// SubscribeEvents registers l for decoded events.
	SubscribeEvents(l EventListener) (unsubscribe func())

	// Close disconnects and stops state dispatch. The socket cannot be
	// reused afterwards.
	Close()
}

// StateListener receives every state transition.
type StateListener func(state.State)

// EventListener receives every decoded event except health checks.
type EventListener func(events.Event)

// Config configures a Socket.
type Config struct {
	URL       string   // wss endpoint of the realtime edge
	APIKey    string   // application API key
	Products  []string // products named in the auth frame
	UserAgent string   // X-Stream-Client identifier

	// HandshakeTimeout bounds the wait for connection.ok after the auth
	// frame is sent.
	HandshakeTimeout time.Duration

	Transport transport.Config
	Health    health.Config
	Batch     batch.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "wss://feeds.stream-io-api.com/api/v2/connect",
		Products:         []string{"feeds"},
		HandshakeTimeout: 15 * time.Second,
		Transport:        transport.DefaultConfig(),
		Health:           health.DefaultConfig(),
		Batch:            batch.DefaultConfig(),
	}
}

// authRequest is the first frame sent on a new connection.
type authRequest struct {
	Products    []string          `json:"products"`
	Token       string            `json:"token"`
	UserDetails model.UserDetails `json:"user_details"`
}
