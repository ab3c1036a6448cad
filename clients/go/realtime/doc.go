// Package realtime is the client core for the mentorship platform's live
// messaging: a session gate, a single-connection websocket transport with
// bounded reconnection, an HTTP client that refreshes expired credentials
// once per request with coalesced refreshes, per-conversation channels with
// optimistic sends, and a listener for server-pushed notifications.
package realtime
