package models

// UserRole is the role claim of a platform token.
type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleOrganizer UserRole = "organizer"
	RolePlayer    UserRole = "player"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleOrganizer, RolePlayer:
		return true
	}
	return false
}

// Principal is the caller identity taken from a verified token.
// OrganizationID is zero for players that act outside an organization.
type Principal struct {
	UserID         int
	OrganizationID int
	Role           UserRole
}
