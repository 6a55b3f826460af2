package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/feeds-realtime/internal/subscription"
)

// WebSocket is a reopenable WebSocket transport.
type WebSocket interface {
	// Open dials cfg.URL. A connection left over from a previous Open is
	// closed without notifying listeners. Dial failures are returned, not
	// broadcast.
	Open(ctx context.Context, cfg Config) error

	// Close sends a normal close frame. Listeners receive OnClosed once the
	// connection ends.
	Close() error

	// SendText writes a text frame.
	SendText(text string) error

	// SendBinary writes a binary frame.
	SendBinary(data []byte) error

	// Subscribe registers l and returns a function that removes it.
	Subscribe(l Listener) (unsubscribe func())
}

type webSocket struct {
	logger    *slog.Logger
	listeners *subscription.Registry[Listener]

	// Write serialization
	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	cfg     Config
	gen     uint64 // bumped on every Open; stale read loops compare against it
	done    bool   // read loop of the current connection has exited
	closing bool   // Close was called on the current connection
}

// NewWebSocket creates an unopened transport.
func NewWebSocket(logger *slog.Logger) WebSocket {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "transport")
	return &webSocket{
		logger:    logger,
		listeners: subscription.NewRegistry[Listener](logger),
	}
}

func (w *webSocket) Subscribe(l Listener) (unsubscribe func()) {
	return w.listeners.Add(l)
}

func (w *webSocket) Open(ctx context.Context, cfg Config) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}

	w.mu.Lock()
	old := w.conn
	w.conn = conn
	w.cfg = cfg
	w.gen++
	gen := w.gen
	w.done = false
	w.closing = false
	w.mu.Unlock()

	if old != nil {
		old.Close()
	}

	w.logger.Debug("websocket connected", "gen", gen)
	w.listeners.Notify(func(l Listener) { l.OnOpen() })

	go w.readLoop(conn, gen)
	return nil
}

func (w *webSocket) Close() error {
	w.mu.Lock()
	conn := w.conn
	if conn == nil {
		w.mu.Unlock()
		return ErrUninitialized
	}
	if w.done || w.closing {
		w.mu.Unlock()
		return nil
	}
	w.closing = true
	timeout := w.cfg.CloseTimeout
	w.mu.Unlock()

	w.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	w.writeMu.Unlock()

	if err != nil {
		w.logger.Debug("failed to send close frame", "error", err)
		conn.Close()
		return nil
	}

	// The read loop ends when the peer echoes the close frame; drop the
	// connection if it never does.
	if timeout <= 0 {
		timeout = time.Second
	}
	time.AfterFunc(timeout, func() { conn.Close() })
	return nil
}

func (w *webSocket) SendText(text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty text frame", ErrInvalidInput)
	}
	return w.write(websocket.TextMessage, []byte(text))
}

func (w *webSocket) SendBinary(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty binary frame", ErrInvalidInput)
	}
	return w.write(websocket.BinaryMessage, data)
}

func (w *webSocket) write(messageType int, data []byte) error {
	w.mu.Lock()
	conn := w.conn
	timeout := w.cfg.WriteTimeout
	w.mu.Unlock()

	if conn == nil {
		return ErrUninitialized
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// readLoop reads frames until the connection ends, then emits the terminal
// callback unless a newer Open has replaced conn.
func (w *webSocket) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		messageType, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Close before notifying so sends issued from a callback fail.
			conn.Close()
			w.finish(gen, err)
			return
		}

		if !w.current(gen) {
			conn.Close()
			return
		}

		msg := Message{Type: TextMessage, Data: data, ReceivedAt: receivedAt}
		if messageType == websocket.BinaryMessage {
			msg.Type = BinaryMessage
		}
		w.listeners.Notify(func(l Listener) { l.OnMessage(msg) })
	}
}

func (w *webSocket) current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen == gen
}

func (w *webSocket) finish(gen uint64, err error) {
	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		return
	}
	w.done = true
	closing := w.closing
	w.mu.Unlock()

	if closing {
		w.logger.Debug("websocket closed by client")
		w.listeners.Notify(func(l Listener) { l.OnClosed(CloseNormal, ClosedByClient) })
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		w.logger.Info("websocket closed by server", "code", closeErr.Code, "reason", closeErr.Text)
		w.listeners.Notify(func(l Listener) { l.OnClosing(closeErr.Code, closeErr.Text) })
		w.listeners.Notify(func(l Listener) { l.OnClosed(closeErr.Code, closeErr.Text) })
		return
	}

	w.logger.Warn("websocket read failed", "error", err)
	w.listeners.Notify(func(l Listener) { l.OnFailure(err) })
}
