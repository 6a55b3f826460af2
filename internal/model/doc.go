// Package model defines the feed entities carried by realtime events.
//
// Types mirror the backend JSON payloads. Only the fields the client reads are
// declared; everything else is preserved in the raw event payload.
//
// Conventions:
//   - Feed identifiers are "group:id" strings (FeedID)
//   - Timestamps decode from RFC 3339 strings into time.Time
//   - Custom data stays as map[string]any
package model
