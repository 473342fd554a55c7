// Package server exposes the HTTP surface: the websocket endpoint that
// carries the live event protocol, the REST fallback and write mirrors,
// and the observability endpoints.
package server
