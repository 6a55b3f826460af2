// Package transport wraps a gorilla WebSocket connection behind a small
// open/close/send API with multi-listener fan-out.
//
// A single read goroutine per connection delivers frames to every listener
// in registration order. When the connection ends the read goroutine emits
// exactly one terminal callback:
//
//   - OnClosed(1000, "Closed by client") after Close
//   - OnClosing then OnClosed with the peer's code after a close frame
//   - OnFailure for any other read error
//
// Connections replaced by a later Open are retired silently.
package transport
