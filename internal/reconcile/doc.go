// Package reconcile keeps a presenter dashboard consistent with the server.
// It consumes push events when the websocket is healthy, falls back to a
// shared backup poll while it is not, and applies optimistic updates with
// rollback for presenter actions. REST reads are the authoritative snapshot;
// push events are only "something changed, go refetch" signals.
package reconcile
