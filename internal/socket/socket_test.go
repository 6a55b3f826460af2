package socket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/feeds-realtime/internal/api"
	"github.com/rickgao/feeds-realtime/internal/auth"
	"github.com/rickgao/feeds-realtime/internal/events"
	"github.com/rickgao/feeds-realtime/internal/health"
	"github.com/rickgao/feeds-realtime/internal/model"
	"github.com/rickgao/feeds-realtime/internal/state"
)

var alice = model.UserDetails{ID: "alice", Name: "Alice"}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.URL = "wss://feeds.test/api/v2/connect"
	cfg.APIKey = "key"
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.Batch.Window = 5 * time.Millisecond
	cfg.Transport.CloseTimeout = 100 * time.Millisecond
	return cfg
}

func newTestSocket(t *testing.T, ft *fakeTransport, mutate func(*Config)) (Socket, *stateRecorder) {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(cfg, ft, auth.StaticToken("tok"), nil)
	rec := &stateRecorder{}
	s.SubscribeState(rec.listener)
	t.Cleanup(s.Close)
	return s, rec
}

func waitKind(t *testing.T, s Socket, kind state.Kind) state.State {
	t.Helper()
	require.Eventually(t, func() bool { return s.State().Kind == kind }, 2*time.Second, time.Millisecond,
		"state never became %s, last %s", kind, s.State())
	return s.State()
}

func TestConnectHandshake(t *testing.T) {
	ft := newFakeTransport()
	s, rec := newTestSocket(t, ft, func(c *Config) { c.UserAgent = "feeds-go-1.0" })

	st, err := s.Connect(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, state.NewConnected("conn-1"), st)
	assert.Equal(t, st, s.State())

	require.Eventually(t, func() bool { return len(rec.kinds()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []state.Kind{state.Connecting, state.Authenticating, state.Connected}, rec.kinds())

	req, ok := ft.authFrame()
	require.True(t, ok)
	assert.Equal(t, []string{"feeds"}, req.Products)
	assert.Equal(t, "tok", req.Token)
	assert.Equal(t, alice, req.UserDetails)

	ft.mu.Lock()
	u := ft.lastURL
	ft.mu.Unlock()
	assert.Contains(t, u, "api_key=key")
	assert.Contains(t, u, "stream-auth-type=jwt")
	assert.Contains(t, u, "X-Stream-Client=feeds-go-1.0")

	require.NotNil(t, s.Me())
	assert.Equal(t, "alice", s.Me().ID)
}

func TestConnectWhenConnectedDoesNotReopen(t *testing.T) {
	ft := newFakeTransport()
	s, _ := newTestSocket(t, ft, nil)

	_, err := s.Connect(context.Background(), alice)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]state.State, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := s.Connect(context.Background(), alice)
			assert.NoError(t, err)
			results[i] = st
		}()
	}
	wg.Wait()

	assert.Equal(t, state.NewConnected("conn-1"), results[0])
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, int32(1), ft.opens.Load())
}

func TestConcurrentConnectJoinsHandshake(t *testing.T) {
	ft := newFakeTransport()
	gate := make(chan struct{})
	ft.openGate = gate
	s, _ := newTestSocket(t, ft, nil)

	var wg sync.WaitGroup
	results := make([]state.State, 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := s.Connect(context.Background(), alice)
			assert.NoError(t, err)
			results[i] = st
		}()
	}

	require.Eventually(t, func() bool { return ft.opens.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, st := range results {
		assert.Equal(t, state.NewConnected("conn-1"), st)
	}
	assert.Equal(t, int32(1), ft.opens.Load())
}

func TestDisconnectPreservesSource(t *testing.T) {
	ft := newFakeTransport()
	ft.silentEnd = true
	s, rec := newTestSocket(t, ft, nil)

	_, err := s.Connect(context.Background(), alice)
	require.NoError(t, err)

	s.Disconnect(state.ByUser())
	assert.Equal(t, state.NewDisconnecting(state.ByUser()), s.State())

	ft.emitClosed(1000, "Closed by client")

	st := waitKind(t, s, state.Disconnected)
	assert.Equal(t, state.NewDisconnected(state.ByUser()), st)
	assert.False(t, st.IsAutomaticReconnectionEnabled())

	require.Eventually(t, func() bool { return rec.last().Kind == state.Disconnected }, time.Second, time.Millisecond)
	kinds := rec.kinds()
	assert.Equal(t, []state.Kind{state.Disconnecting, state.Disconnected}, kinds[len(kinds)-2:])
	assert.Equal(t, int32(1), ft.closes.Load())
}

func TestTransportFailureIsSystemInitiated(t *testing.T) {
	ft := newFakeTransport()
	s, _ := newTestSocket(t, ft, nil)

	_, err := s.Connect(context.Background(), alice)
	require.NoError(t, err)

	ft.emitFailure(errors.New("connection reset"))

	st := waitKind(t, s, state.Disconnected)
	assert.Equal(t, state.NewDisconnected(state.BySystem()), st)
	assert.True(t, st.IsAutomaticReconnectionEnabled())
	require.Eventually(t, func() bool { return ft.listeners.Len() == 0 }, time.Second, time.Millisecond,
		"session must unsubscribe from the transport")
}

func TestServerClose(t *testing.T) {
	t.Run("normal closure suppresses reconnect", func(t *testing.T) {
		ft := newFakeTransport()
		s, _ := newTestSocket(t, ft, nil)
		_, err := s.Connect(context.Background(), alice)
		require.NoError(t, err)

		ft.emitClosed(1000, "server shutdown")

		st := waitKind(t, s, state.Disconnected)
		require.Equal(t, state.ServerInitiated, st.Source.Kind)
		require.NotNil(t, st.Source.Err)
		assert.Equal(t, api.CodeNormalClosure, st.Source.Err.Code)
		assert.False(t, st.IsAutomaticReconnectionEnabled())
	})

	t.Run("abnormal code is system initiated", func(t *testing.T) {
		ft := newFakeTransport()
		s, _ := newTestSocket(t, ft, nil)
		_, err := s.Connect(context.Background(), alice)
		require.NoError(t, err)

		ft.emitClosed(4000, "try again")

		st := waitKind(t, s, state.Disconnected)
		assert.Equal(t, state.NewDisconnected(state.BySystem()), st)
	})
}

func TestConnectionErrorDuringHandshake(t *testing.T) {
	ft := newFakeTransport()
	ft.onAuth = func(f *fakeTransport, frame string) {
		f.emitText(`{"type":"connection.error","connection_id":"","created_at":"2026-01-01T00:00:00Z","error":{"code":40,"message":"token expired","StatusCode":401}}`)
	}
	s, rec := newTestSocket(t, ft, nil)

	st, err := s.Connect(context.Background(), alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerRejected)

	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 40, apiErr.Code)

	assert.Equal(t, state.Disconnected, st.Kind)
	assert.Equal(t, state.ServerInitiated, st.Source.Kind)
	assert.False(t, st.IsAutomaticReconnectionEnabled())

	require.Eventually(t, func() bool { return rec.last().Kind == state.Disconnected }, time.Second, time.Millisecond)
	assert.NotContains(t, rec.kinds(), state.Disconnecting)
}

func TestConnectCancellation(t *testing.T) {
	ft := newFakeTransport()
	ft.onAuth = nil
	s, _ := newTestSocket(t, ft, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	st, err := s.Connect(ctx, alice)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, state.NewDisconnected(state.BySystem()), st)
	assert.True(t, st.IsAutomaticReconnectionEnabled())
	assert.Zero(t, ft.listeners.Len())

	// The socket stays usable.
	ft.mu.Lock()
	ft.onAuth = replyConnected
	ft.sent = nil
	ft.mu.Unlock()

	st, err = s.Connect(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, st.IsConnected())
	assert.Equal(t, int32(2), ft.opens.Load())
}

func TestConnectCancelledByCaller(t *testing.T) {
	ft := newFakeTransport()
	ft.onAuth = nil
	s, _ := newTestSocket(t, ft, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return s.State().Kind == state.Authenticating }, time.Second, time.Millisecond)
		cancel()
	}()

	st, err := s.Connect(ctx, alice)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, state.NewDisconnected(state.ByUser()), st)
	assert.False(t, st.IsAutomaticReconnectionEnabled())
}

func TestConnectDeadlineCause(t *testing.T) {
	ft := newFakeTransport()
	ft.onAuth = nil
	s, _ := newTestSocket(t, ft, nil)

	errAttempt := errors.New("attempt timed out")
	ctx, cancel := context.WithTimeoutCause(context.Background(), 50*time.Millisecond, errAttempt)
	defer cancel()

	st, err := s.Connect(ctx, alice)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, errAttempt)
	assert.Equal(t, state.NewDisconnected(state.BySystem()), st)
}

func TestJoinedCallerCancellation(t *testing.T) {
	ft := newFakeTransport()
	gate := make(chan struct{})
	ft.openGate = gate
	s, _ := newTestSocket(t, ft, nil)

	ownerDone := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background(), alice)
		ownerDone <- err
	}()
	waitKind(t, s, state.Connecting)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Connect(ctx, alice)
	assert.ErrorIs(t, err, context.Canceled)

	// Abandoning the wait does not disturb the owner.
	close(gate)
	require.NoError(t, <-ownerDone)
	assert.True(t, s.State().IsConnected())
}

func TestHandshakeTimeout(t *testing.T) {
	ft := newFakeTransport()
	ft.onAuth = nil
	s, _ := newTestSocket(t, ft, func(c *Config) { c.HandshakeTimeout = 30 * time.Millisecond })

	st, err := s.Connect(context.Background(), alice)
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
	assert.Equal(t, state.NewDisconnected(state.BySystem()), st)
}

func TestOpenFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.openErr = errors.New("connection refused")
	s, _ := newTestSocket(t, ft, nil)

	st, err := s.Connect(context.Background(), alice)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, state.NewDisconnected(state.BySystem()), st)
	assert.True(t, st.IsAutomaticReconnectionEnabled())
}

func TestDisconnectDuringOpen(t *testing.T) {
	ft := newFakeTransport()
	gate := make(chan struct{})
	ft.openGate = gate
	s, _ := newTestSocket(t, ft, nil)

	type result struct {
		st  state.State
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := s.Connect(context.Background(), alice)
		done <- result{st, err}
	}()
	require.Eventually(t, func() bool { return ft.opens.Load() == 1 }, time.Second, time.Millisecond)

	s.Disconnect(state.ByUser())
	assert.Equal(t, state.Disconnecting, s.State().Kind)
	close(gate)

	r := <-done
	assert.ErrorIs(t, r.err, ErrConnectionClosed)
	assert.Equal(t, state.NewDisconnected(state.ByUser()), r.st)
	assert.Empty(t, ft.sentFrames(), "no auth frame after disconnect")
}

func TestConnectWhileDisconnecting(t *testing.T) {
	ft := newFakeTransport()
	ft.silentEnd = true
	s, _ := newTestSocket(t, ft, nil)

	_, err := s.Connect(context.Background(), alice)
	require.NoError(t, err)
	s.Disconnect(state.ByUser())

	_, err = s.Connect(context.Background(), alice)
	assert.ErrorIs(t, err, ErrDisconnecting)

	ft.emitClosed(1000, "Closed by client")
	waitKind(t, s, state.Disconnected)
}

func TestEventDelivery(t *testing.T) {
	ft := newFakeTransport()
	s, _ := newTestSocket(t, ft, nil)

	var mu sync.Mutex
	var got []events.Event
	s.SubscribeEvents(func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})

	_, err := s.Connect(context.Background(), alice)
	require.NoError(t, err)

	ft.emitText(`{"type":"health.check","connection_id":"conn-1"}`)
	ft.emitText(`{"type":"feeds.activity.added","fid":"user:alice","activity":{"id":"a1"}}`)
	ft.emitText(`{"type":`)
	ft.emitText(`{"type":"feeds.comment.added","comment":{"id":"c1"}}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, events.TypeActivityAdded, got[0].Type())
	assert.Equal(t, events.TypeCommentAdded, got[1].Type())
	assert.True(t, s.State().IsConnected(), "bad frames must not break the socket")
}

func TestLivenessThresholdDisconnects(t *testing.T) {
	ft := newFakeTransport()
	s, _ := newTestSocket(t, ft, func(c *Config) {
		c.Health = health.Config{Interval: 10 * time.Millisecond, LivenessThreshold: 40 * time.Millisecond}
	})

	_, err := s.Connect(context.Background(), alice)
	require.NoError(t, err)

	st := waitKind(t, s, state.Disconnected)
	assert.Equal(t, state.NewDisconnected(state.ByNoPong()), st)
	assert.True(t, st.IsAutomaticReconnectionEnabled())
}

func TestHeartbeatReplaysConnectedPayload(t *testing.T) {
	ft := newFakeTransport()
	s, _ := newTestSocket(t, ft, func(c *Config) {
		c.Health = health.Config{Interval: 10 * time.Millisecond, LivenessThreshold: time.Hour}
	})

	_, err := s.Connect(context.Background(), alice)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		frames := ft.sentFrames()
		return len(frames) >= 3 && frames[1] == connectedFrame && frames[2] == connectedFrame
	}, time.Second, time.Millisecond)
}

func TestEventsKeepConnectionAlive(t *testing.T) {
	ft := newFakeTransport()
	s, _ := newTestSocket(t, ft, func(c *Config) {
		c.Health = health.Config{Interval: 10 * time.Millisecond, LivenessThreshold: 60 * time.Millisecond}
	})

	_, err := s.Connect(context.Background(), alice)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		ft.emitText(`{"type":"health.check","connection_id":"conn-1"}`)
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, s.State().IsConnected())
}

func TestCleanupStopsHeartbeats(t *testing.T) {
	ft := newFakeTransport()
	s, _ := newTestSocket(t, ft, func(c *Config) {
		c.Health = health.Config{Interval: 5 * time.Millisecond, LivenessThreshold: time.Hour}
	})

	_, err := s.Connect(context.Background(), alice)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(ft.sentFrames()) >= 2 }, time.Second, time.Millisecond)

	ft.emitFailure(errors.New("gone"))
	waitKind(t, s, state.Disconnected)

	n := len(ft.sentFrames())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(ft.sentFrames()))
}

func TestReconnect(t *testing.T) {
	t.Run("without prior connect", func(t *testing.T) {
		s, _ := newTestSocket(t, newFakeTransport(), nil)
		_, err := s.Reconnect(context.Background())
		assert.ErrorIs(t, err, ErrNoUser)
	})

	t.Run("reuses last user", func(t *testing.T) {
		ft := newFakeTransport()
		s, _ := newTestSocket(t, ft, nil)

		_, err := s.Connect(context.Background(), alice)
		require.NoError(t, err)
		ft.emitFailure(errors.New("reset"))
		waitKind(t, s, state.Disconnected)

		ft.resetSent()
		st, err := s.Reconnect(context.Background())
		require.NoError(t, err)
		assert.True(t, st.IsConnected())

		req, ok := ft.authFrame()
		require.True(t, ok)
		assert.Equal(t, "alice", req.UserDetails.ID)
	})
}

func TestClose(t *testing.T) {
	ft := newFakeTransport()
	s := New(testConfig(), ft, auth.StaticToken("tok"), nil)

	_, err := s.Connect(context.Background(), alice)
	require.NoError(t, err)

	s.Close()
	assert.Equal(t, state.NewDisconnected(state.ByUser()), s.State())

	_, err = s.Connect(context.Background(), alice)
	assert.ErrorIs(t, err, ErrClosed)
	s.Close()
}

func TestTokenFailure(t *testing.T) {
	ft := newFakeTransport()
	s := New(testConfig(), ft, auth.StaticToken(""), nil)
	defer s.Close()

	st, err := s.Connect(context.Background(), alice)
	assert.ErrorIs(t, err, auth.ErrEmptyToken)
	assert.Equal(t, state.NewDisconnected(state.BySystem()), st)
	assert.Zero(t, ft.opens.Load())
}
