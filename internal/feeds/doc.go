// Package feeds assembles a realtime feeds client from configuration.
//
// A Client owns the socket and everything that keeps it useful: automatic
// reconnection, watched-feed rehydration, a network probe, a lifecycle
// tracker and, when enabled, the event journal.
package feeds
