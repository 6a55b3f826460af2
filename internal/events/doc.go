// Package events decodes frames received on the feeds socket.
//
// Frames are JSON objects discriminated by a "type" field, which is peeked
// with gjson before the full decode. The feed catalogue (activities,
// comments, reactions, follows, bookmarks, polls, health checks) is tried
// first; the connection handshake frames "connection.ok" and
// "connection.error" are not part of that catalogue and are matched second.
// Types neither table knows decode to *UnknownEvent.
//
// A frame that fails to decode is retried as a bare APIError envelope and
// returned as *ErrorEvent.
package events
