// Package domain holds the core model types, the broadcast event catalog,
// and the interfaces that decouple components from infrastructure.
package domain
