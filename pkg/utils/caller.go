package utils

import "github.com/google/uuid"

// Caller is the authenticated identity a request acts as.
type Caller struct {
	ID   uuid.UUID
	Role string
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// CanAccess reports whether the caller may read or act on a resource owned by ownerID.
func (c Caller) CanAccess(ownerID uuid.UUID) bool {
	return c.IsAdmin() || (c.ID != uuid.Nil && c.ID == ownerID)
}
