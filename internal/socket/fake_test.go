package socket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/feeds-realtime/internal/state"
	"github.com/rickgao/feeds-realtime/internal/subscription"
	"github.com/rickgao/feeds-realtime/internal/transport"
)

const connectedFrame = `{"type":"connection.ok","connection_id":"conn-1","me":{"id":"alice"}}`

func replyConnected(f *fakeTransport, frame string) {
	f.emitText(connectedFrame)
}

// fakeTransport is an in-memory transport.WebSocket. By default it answers
// the auth frame with connection.ok and echoes Close as OnClosed(1000).
// Like the real transport, every callback except OnOpen runs on one
// goroutine, in order.
type fakeTransport struct {
	listeners *subscription.Registry[transport.Listener]
	inbox     *subscription.Queue[func(transport.Listener)]

	opens  atomic.Int32
	closes atomic.Int32

	mu        sync.Mutex
	open      bool
	sent      []string
	openErr   error
	openGate  chan struct{} // blocks Open until closed, if set
	onAuth    func(f *fakeTransport, frame string)
	lastURL   string
	silentEnd bool // Close does not emit OnClosed
}

func newFakeTransport() *fakeTransport {
	f := &fakeTransport{
		listeners: subscription.NewRegistry[transport.Listener](nil),
		inbox:     subscription.NewQueue[func(transport.Listener)](16),
		onAuth:    replyConnected,
	}
	go f.readLoop()
	return f
}

func (f *fakeTransport) readLoop() {
	for {
		fn, ok := f.inbox.Pop()
		if !ok {
			return
		}
		f.listeners.Notify(fn)
	}
}

func (f *fakeTransport) Open(ctx context.Context, cfg transport.Config) error {
	f.opens.Add(1)

	f.mu.Lock()
	gate := f.openGate
	err := f.openErr
	f.lastURL = cfg.URL
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	f.listeners.Notify(func(l transport.Listener) { l.OnOpen() })
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	wasOpen := f.open
	f.open = false
	silent := f.silentEnd
	f.mu.Unlock()

	if !wasOpen {
		return transport.ErrUninitialized
	}
	f.closes.Add(1)
	if !silent {
		f.emitClosed(transport.CloseNormal, transport.ClosedByClient)
	}
	return nil
}

func (f *fakeTransport) SendText(text string) error {
	if text == "" {
		return transport.ErrInvalidInput
	}

	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return transport.ErrUninitialized
	}
	first := len(f.sent) == 0
	f.sent = append(f.sent, text)
	onAuth := f.onAuth
	f.mu.Unlock()

	if first && onAuth != nil {
		onAuth(f, text)
	}
	return nil
}

func (f *fakeTransport) SendBinary(data []byte) error {
	return f.SendText(string(data))
}

func (f *fakeTransport) Subscribe(l transport.Listener) (unsubscribe func()) {
	return f.listeners.Add(l)
}

func (f *fakeTransport) emitText(frame string) {
	msg := transport.Message{Type: transport.TextMessage, Data: []byte(frame), ReceivedAt: time.Now()}
	f.inbox.Push(func(l transport.Listener) { l.OnMessage(msg) })
}

func (f *fakeTransport) emitClosed(code int, reason string) {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	f.inbox.Push(func(l transport.Listener) { l.OnClosed(code, reason) })
}

func (f *fakeTransport) emitFailure(err error) {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	f.inbox.Push(func(l transport.Listener) { l.OnFailure(err) })
}

// resetSent forgets recorded frames so the next send counts as an auth frame.
func (f *fakeTransport) resetSent() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

func (f *fakeTransport) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) authFrame() (authRequest, bool) {
	frames := f.sentFrames()
	if len(frames) == 0 {
		return authRequest{}, false
	}
	var req authRequest
	if err := json.Unmarshal([]byte(frames[0]), &req); err != nil {
		return authRequest{}, false
	}
	return req, true
}

// stateRecorder collects state transitions from a socket.
type stateRecorder struct {
	mu     sync.Mutex
	states []state.State
}

func (r *stateRecorder) listener(st state.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *stateRecorder) kinds() []state.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]state.Kind, len(r.states))
	for i, s := range r.states {
		out[i] = s.Kind
	}
	return out
}

func (r *stateRecorder) last() state.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return state.State{}
	}
	return r.states[len(r.states)-1]
}
