// Package entities provides tenant organizations ("entities"), the user
// membership relation and the role checks gating access to entity-scoped
// resources.
package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RoleAdmin is granted to an entity's creator and required for entity
// metadata mutation. Roles are free-form strings; only "admin" has meaning
// to the server.
const RoleAdmin = "admin"

var (
	ErrNotFound  = errors.New("entity not found")
	ErrForbidden = errors.New("access denied")
)

// Entity is a tenant organization grouping users and compliance records
type Entity struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Membership links a user to an entity with a role
type Membership struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	EntityID  uuid.UUID `json:"entity_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is a membership joined with the user's contact fields, returned by
// the entity users listing
type Member struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	EntityID  uuid.UUID `json:"entity_id"`
	Role      string    `json:"role"`
	Email     string    `json:"email"`
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
}

// CreateEntityRequest is the payload for entity creation
type CreateEntityRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// UpdateEntityRequest carries optional fields; absent fields keep their
// prior value
type UpdateEntityRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}
