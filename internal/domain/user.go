package domain

import "time"

// Role is the closed set of account roles.
type Role string

const (
	RoleCreator  Role = "creator"
	RoleConsumer Role = "consumer"
)

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleCreator, RoleConsumer}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCreator, RoleConsumer:
		return true
	}
	return false
}

// OrDefault returns r, or RoleConsumer when r is not a known role.
func (r Role) OrDefault() Role {
	if r.Valid() {
		return r
	}
	return RoleConsumer
}

// User is the account record owned by the user store.
type User struct {
	ID             string
	Name           string
	Username       string
	Email          string
	PasswordHash   string
	ProfilePicture string
	Bio            string
	Role           Role
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
