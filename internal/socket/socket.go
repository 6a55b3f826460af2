package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/feeds-realtime/internal/api"
	"github.com/rickgao/feeds-realtime/internal/auth"
	"github.com/rickgao/feeds-realtime/internal/events"
	"github.com/rickgao/feeds-realtime/internal/model"
	"github.com/rickgao/feeds-realtime/internal/state"
	"github.com/rickgao/feeds-realtime/internal/subscription"
	"github.com/rickgao/feeds-realtime/internal/transport"
)

type feedsSocket struct {
	cfg    Config
	ws     transport.WebSocket
	tokens auth.Provider
	logger *slog.Logger

	stateListeners *subscription.Registry[StateListener]
	eventListeners *subscription.Registry[EventListener]
	dispatch       *subscription.Queue[state.State]

	mu        sync.Mutex
	state     state.State
	session   *session
	user      *model.UserDetails
	me        *model.OwnUser
	connected []byte // last connection.ok frame, replayed as the heartbeat
	closed    bool
}

// New creates a socket over ws. The transport must not be shared.
func New(cfg Config, ws transport.WebSocket, tokens auth.Provider, logger *slog.Logger) Socket {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "socket")

	s := &feedsSocket{
		cfg:            cfg,
		ws:             ws,
		tokens:         tokens,
		logger:         logger,
		stateListeners: subscription.NewRegistry[StateListener](logger),
		eventListeners: subscription.NewRegistry[EventListener](logger),
		dispatch:       subscription.NewQueue[state.State](16),
		state:          state.NewInitialized(),
	}
	go s.dispatchLoop()
	return s
}

func (s *feedsSocket) State() state.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *feedsSocket) Me() *model.OwnUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.me
}

func (s *feedsSocket) SubscribeState(l StateListener) (unsubscribe func()) {
	return s.stateListeners.Add(l)
}

func (s *feedsSocket) SubscribeEvents(l EventListener) (unsubscribe func()) {
	return s.eventListeners.Add(l)
}

func (s *feedsSocket) Connect(ctx context.Context, user model.UserDetails) (state.State, error) {
	s.mu.Lock()
	if s.closed {
		st := s.state
		s.mu.Unlock()
		return st, ErrClosed
	}

	switch s.state.Kind {
	case state.Connected:
		st := s.state
		s.mu.Unlock()
		return st, nil
	case state.Connecting, state.Authenticating:
		hs := s.session.handshake
		s.mu.Unlock()
		return s.join(ctx, hs)
	case state.Disconnecting:
		st := s.state
		s.mu.Unlock()
		return st, ErrDisconnecting
	}

	sess := newSession(s.cfg, s.logger)
	s.bind(sess)
	s.session = sess
	s.user = &user
	s.setStateLocked(state.NewConnecting())
	s.mu.Unlock()

	sess.logger.Info("connecting", "user_id", user.ID)
	return s.establish(ctx, sess, user)
}

func (s *feedsSocket) Reconnect(ctx context.Context) (state.State, error) {
	s.mu.Lock()
	user := s.user
	st := s.state
	s.mu.Unlock()

	if user == nil {
		return st, ErrNoUser
	}
	return s.Connect(ctx, *user)
}

func (s *feedsSocket) Disconnect(src state.Source) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	if sess != nil {
		s.disconnectSession(sess, src)
	}
}

func (s *feedsSocket) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sess := s.session
	s.mu.Unlock()

	if sess != nil {
		s.disconnectSession(sess, state.ByUser())
		wait := s.cfg.Transport.CloseTimeout + time.Second
		select {
		case <-sess.ended:
		case <-time.After(wait):
			s.logger.Warn("session did not end before close", "session_id", sess.id)
			s.finish(sess, state.ByUser(), ErrClosed)
		}
	}
	s.dispatch.Close()
}

// bind wires the session helpers back to the socket. Must be called with
// lock held.
func (s *feedsSocket) bind(sess *session) {
	sess.health.OnInterval(func() { s.sendHealthCheck(sess) })
	sess.health.OnLivenessThreshold(func() { s.disconnectSession(sess, state.ByNoPong()) })
	sess.batcher.OnBatch(func(batch []events.Event, delay time.Duration, count int) {
		s.deliver(sess, batch, delay, count)
	})
	sess.unsubscribe = s.ws.Subscribe(transport.ListenerFuncs{
		Message: func(m transport.Message) { s.handleMessage(sess, m) },
		Failure: func(err error) {
			s.finish(sess, state.BySystem(), fmt.Errorf("%w: %w", ErrConnectionClosed, err))
		},
		Closing: func(code int, reason string) {
			sess.logger.Debug("transport closing", "code", code, "reason", reason)
		},
		Closed: func(code int, reason string) { s.handleClosed(sess, code, reason) },
	})
	sess.batcher.Start()
}

// establish runs the owner side of a handshake.
func (s *feedsSocket) establish(ctx context.Context, sess *session, user model.UserDetails) (state.State, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return s.abort(ctx, sess, fmt.Errorf("get token: %w", err), false)
	}

	if err := s.ws.Open(ctx, s.transportConfig()); err != nil {
		return s.abort(ctx, sess, fmt.Errorf("open transport: %w", err), false)
	}

	s.mu.Lock()
	if s.session != sess || s.state.Kind != state.Connecting {
		// Disconnect ran while the transport was opening.
		disconnecting := s.session == sess
		s.mu.Unlock()
		if disconnecting {
			s.ws.Close()
		}
		return s.await(ctx, sess)
	}
	s.setStateLocked(state.NewAuthenticating())
	s.mu.Unlock()

	frame, err := json.Marshal(authRequest{
		Products:    s.cfg.Products,
		Token:       token,
		UserDetails: user,
	})
	if err != nil {
		return s.abort(ctx, sess, fmt.Errorf("marshal auth frame: %w", err), true)
	}
	if err := s.ws.SendText(string(frame)); err != nil {
		return s.abort(ctx, sess, fmt.Errorf("send auth frame: %w", err), true)
	}

	return s.await(ctx, sess)
}

// await blocks the owner until the handshake resolves, ctx ends or the
// handshake deadline passes.
func (s *feedsSocket) await(ctx context.Context, sess *session) (state.State, error) {
	var deadline <-chan time.Time
	if s.cfg.HandshakeTimeout > 0 {
		t := time.NewTimer(s.cfg.HandshakeTimeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case <-sess.handshake.done:
		return sess.handshake.st, sess.handshake.err
	case <-ctx.Done():
		return s.abort(ctx, sess, ctx.Err(), true)
	case <-deadline:
		return s.abort(ctx, sess, ErrHandshakeTimeout, true)
	}
}

// join waits on a handshake started by another caller. Cancelling ctx only
// abandons the wait.
func (s *feedsSocket) join(ctx context.Context, hs *handshake) (state.State, error) {
	select {
	case <-hs.done:
		return hs.st, hs.err
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// abort tears down a session whose handshake failed on the owner side. A
// cancelled ctx ends the session as user initiated, an expired one as system
// initiated. When the transport was opened the session passes through
// Disconnecting, which keeps other callers from starting a session until the
// close is done.
func (s *feedsSocket) abort(ctx context.Context, sess *session, cause error, opened bool) (state.State, error) {
	src := state.BySystem()
	if ctxErr := ctx.Err(); ctxErr != nil {
		cause = ctxErr
		if c := context.Cause(ctx); c != nil && c != ctxErr {
			cause = fmt.Errorf("%w: %w", ctxErr, c)
		}
		if errors.Is(ctxErr, context.Canceled) {
			src = state.ByUser()
		}
	}

	s.mu.Lock()
	if s.session != sess || s.state.Kind == state.Connected {
		s.mu.Unlock()
		<-sess.handshake.done
		return sess.handshake.st, sess.handshake.err
	}
	if opened && s.state.Kind != state.Disconnecting {
		s.setStateLocked(state.NewDisconnecting(src))
	}
	s.mu.Unlock()

	sess.logger.Warn("handshake aborted", "error", cause)
	if opened {
		s.ws.Close()
	}
	if next, ok := s.finish(sess, src, cause); ok {
		return next, cause
	}
	<-sess.handshake.done
	return sess.handshake.st, cause
}

// finish moves sess to Disconnected, keeping the source of a pending
// Disconnect, and releases it. It reports false if sess already ended.
func (s *feedsSocket) finish(sess *session, src state.Source, cause error) (state.State, bool) {
	s.mu.Lock()
	if s.session != sess {
		st := s.state
		s.mu.Unlock()
		return st, false
	}
	if s.state.Kind == state.Disconnecting {
		src = s.state.Source
	}
	s.session = nil
	s.connected = nil
	next := state.NewDisconnected(src)
	s.setStateLocked(next)
	s.mu.Unlock()

	sess.release()
	if cause == nil {
		cause = ErrConnectionClosed
	}
	sess.handshake.resolve(next, cause)
	sess.logger.Info("disconnected", "source", src.String())
	return next, true
}

func (s *feedsSocket) disconnectSession(sess *session, src state.Source) {
	s.mu.Lock()
	if s.session != sess || s.state.Kind == state.Disconnecting {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(state.NewDisconnecting(src))
	s.mu.Unlock()

	sess.logger.Info("disconnecting", "source", src.String())
	if err := s.ws.Close(); err != nil {
		// Nothing is open yet; establish closes the transport once Open
		// returns and sees the Disconnecting state.
		sess.logger.Debug("close before open", "error", err)
	}
}

func (s *feedsSocket) handleClosed(sess *session, code int, reason string) {
	src := state.BySystem()
	if code == api.CodeNormalClosure {
		src = state.ByServer(&api.APIError{Code: code, Message: reason})
	}
	s.finish(sess, src, fmt.Errorf("%w: code %d: %s", ErrConnectionClosed, code, reason))
}

func (s *feedsSocket) handleMessage(sess *session, m transport.Message) {
	if m.Type != transport.TextMessage {
		sess.logger.Debug("ignoring binary frame", "bytes", len(m.Data))
		return
	}

	ev, err := events.Decode(m.Data)
	if err != nil {
		sess.logger.Warn("dropping undecodable frame", "error", err, "bytes", len(m.Data))
		return
	}

	switch e := ev.(type) {
	case *events.ConnectedEvent:
		s.onConnected(sess, e, m.Data)
	case *events.ConnectionErrorEvent:
		s.onServerError(sess, e.Error)
	case *events.ErrorEvent:
		s.onServerError(sess, e.Err)
	default:
		sess.batcher.OnMessage(ev)
	}
}

func (s *feedsSocket) onConnected(sess *session, e *events.ConnectedEvent, raw []byte) {
	s.mu.Lock()
	if s.session != sess || s.state.Kind != state.Authenticating {
		kind := s.state.Kind
		s.mu.Unlock()
		sess.logger.Debug("ignoring connection.ok", "state", kind.String())
		sess.health.Ack()
		return
	}
	s.connected = append([]byte(nil), raw...)
	s.me = e.Me
	next := state.NewConnected(e.ConnectionID)
	sess.health.Start()
	s.setStateLocked(next)
	sess.handshake.resolve(next, nil)
	s.mu.Unlock()

	sess.logger.Info("connected", "connection_id", e.ConnectionID)
}

func (s *feedsSocket) onServerError(sess *session, apiErr *api.APIError) {
	cause := ErrServerRejected
	if apiErr != nil {
		cause = fmt.Errorf("%w: %w", ErrServerRejected, apiErr)
	}

	s.mu.Lock()
	current := s.session == sess
	kind := s.state.Kind
	s.mu.Unlock()

	if !current {
		return
	}
	sess.logger.Warn("server error", "error", cause)

	switch kind {
	case state.Connecting, state.Authenticating:
		// No live session yet, so skip Disconnecting.
		s.ws.Close()
		s.finish(sess, state.ByServer(apiErr), cause)
	case state.Connected:
		s.disconnectSession(sess, state.ByServer(apiErr))
	}
}

func (s *feedsSocket) deliver(sess *session, batch []events.Event, delay time.Duration, count int) {
	sess.health.Ack()
	sess.logger.Debug("delivering batch", "count", count, "delay", delay)

	for _, ev := range batch {
		if events.IsHealthCheck(ev) {
			continue
		}
		s.eventListeners.Notify(func(l EventListener) { l(ev) })
	}
}

func (s *feedsSocket) sendHealthCheck(sess *session) {
	s.mu.Lock()
	payload := s.connected
	current := s.session == sess && s.state.Kind == state.Connected
	s.mu.Unlock()

	if !current || payload == nil {
		return
	}
	if err := s.ws.SendText(string(payload)); err != nil {
		sess.logger.Warn("failed to send health check", "error", err)
	}
}

// Must be called with lock held.
func (s *feedsSocket) setStateLocked(next state.State) {
	prev := s.state
	s.state = next
	s.logger.Debug("state transition", "from", prev.String(), "to", next.String())
	s.dispatch.Push(next)
}

func (s *feedsSocket) dispatchLoop() {
	for {
		st, ok := s.dispatch.Pop()
		if !ok {
			return
		}
		s.stateListeners.Notify(func(l StateListener) { l(st) })
	}
}

func (s *feedsSocket) transportConfig() transport.Config {
	cfg := s.cfg.Transport

	q := url.Values{}
	q.Set("api_key", s.cfg.APIKey)
	q.Set("stream-auth-type", "jwt")
	if s.cfg.UserAgent != "" {
		q.Set("X-Stream-Client", s.cfg.UserAgent)
	}

	sep := "?"
	if strings.Contains(s.cfg.URL, "?") {
		sep = "&"
	}
	cfg.URL = s.cfg.URL + sep + q.Encode()
	return cfg
}
