package transport

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrUninitialized = errors.New("transport not opened")
	ErrInvalidInput  = errors.New("invalid input")
	ErrIO            = errors.New("transport i/o error")
)

// CloseNormal is the close code used by Close.
const CloseNormal = 1000

// ClosedByClient is the reason reported with OnClosed after Close.
const ClosedByClient = "Closed by client"

// MessageType distinguishes text and binary frames.
type MessageType int

const (
	TextMessage MessageType = iota + 1
	BinaryMessage
)

// Message is a frame received from the server.
type Message struct {
	Type       MessageType
	Data       []byte
	ReceivedAt time.Time // local time ReadMessage returned
}

// Text returns the payload as a string.
func (m Message) Text() string { return string(m.Data) }

// Listener receives transport events. Callbacks run on the read goroutine
// (OnOpen runs on the goroutine calling Open) and must not block for long.
type Listener interface {
	OnOpen()
	OnMessage(Message)
	OnFailure(error)
	OnClosing(code int, reason string)
	OnClosed(code int, reason string)
}

// ListenerFuncs implements Listener with optional callbacks.
type ListenerFuncs struct {
	Open    func()
	Message func(Message)
	Failure func(error)
	Closing func(code int, reason string)
	Closed  func(code int, reason string)
}

func (f ListenerFuncs) OnOpen() {
	if f.Open != nil {
		f.Open()
	}
}

func (f ListenerFuncs) OnMessage(m Message) {
	if f.Message != nil {
		f.Message(m)
	}
}

func (f ListenerFuncs) OnFailure(err error) {
	if f.Failure != nil {
		f.Failure(err)
	}
}

func (f ListenerFuncs) OnClosing(code int, reason string) {
	if f.Closing != nil {
		f.Closing(code, reason)
	}
}

func (f ListenerFuncs) OnClosed(code int, reason string) {
	if f.Closed != nil {
		f.Closed(code, reason)
	}
}

// Config configures a connection attempt.
type Config struct {
	URL              string        // ws:// or wss:// endpoint including query
	Header           http.Header   // extra handshake headers
	HandshakeTimeout time.Duration // upgrade deadline
	WriteTimeout     time.Duration // write deadline for sends
	CloseTimeout     time.Duration // wait for the peer's close frame before dropping the connection
	ReadLimit        int64         // max frame size, 0 for unlimited
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		CloseTimeout:     time.Second,
		ReadLimit:        1 << 20,
	}
}
