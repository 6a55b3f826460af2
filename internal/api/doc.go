// Package api provides the feeds REST client used by the realtime layer and
// the APIError envelope shared by REST responses and socket frames.
//
// REST endpoint:
//   - https://feeds.stream-io-api.com/api/v2
//
// Realtime endpoint:
//   - wss://feeds.stream-io-api.com/api/v2/connect
//
// Only the calls the realtime layer depends on live here (watching a feed on a
// connection). Error bodies are decoded into APIError whether they arrive flat
// or wrapped as {"error": {...}}.
package api
