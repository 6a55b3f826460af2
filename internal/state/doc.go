// Package state defines the connection state machine of a feeds socket.
//
// A State is a tagged variant: Kind selects the variant and the remaining
// fields carry its payload (ConnectionID for Connected, Source for
// Disconnecting and Disconnected). States are plain values; the socket owns
// the single authoritative copy and hands snapshots to readers.
//
//	Initialized/Disconnected --Connect--> Connecting --open--> Authenticating --connection.ok--> Connected
//	Connected --Disconnect(src)--> Disconnecting(src) --closed--> Disconnected(src)
package state
