package domain

import "github.com/google/uuid"

// Role of a connection within a presentation.
type Role string

const (
	RolePresenter Role = "presenter"
	RoleAudience  Role = "audience"
)

// Connection is the ephemeral membership record owned by the session
// registry. It is created on join, destroyed on disconnect, and never
// persisted; the registry starts from zero connections on process restart.
type Connection struct {
	ConnectionID   uuid.UUID
	PresentationID uuid.UUID
	Role           Role
}
