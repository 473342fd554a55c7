// Package broadcast implements the pub/sub hub that fans typed events out to
// presentation-scoped groups of WebSocket clients. Delivery is at-most-once
// and best-effort: there is no acknowledgement or retry, and a disconnected
// client misses events emitted while it was offline. Ordering is preserved
// only within a single connection's event stream.
package broadcast
