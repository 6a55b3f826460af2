// Package socket implements the feeds realtime connection: transport
// lifecycle, the auth handshake, heartbeats, event decoding and batched
// delivery, and the connection state machine.
//
// Every Connect starts a session bound to one transport connection. The
// session owns its health monitor, batch processor and transport
// subscription, and all of them are released together when the session
// reaches Disconnected.
//
// State transitions are applied under the socket mutex and queued for a
// single dispatch goroutine, so state listeners see every transition in
// order and may call back into the socket.
package socket
