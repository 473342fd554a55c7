// Package redis provides the optional Redis-backed infrastructure: the
// shared client and the submission debouncer used when a deployment opts
// into duplicate-submission protection.
package redis
