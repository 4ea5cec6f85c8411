package types

import (
	"fmt"
	"strings"
	"time"
)

// Role is the authorization level of a user.
type Role string

// Supported roles, in order of escalating write permissions.
const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Roles lists every valid role.
var Roles = []Role{RoleUser, RoleModerator, RoleAdmin}

// ParseRole converts a raw string into a Role, rejecting unknown values.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// User represents an account in the system.
// It contains identity, role, the pending confirmation code and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"-" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Bio       string `json:"bio" db:"bio"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" db:"role"`

	// IsSuperuser forces the admin role whenever the user is saved.
	IsSuperuser bool `json:"-" db:"is_superuser"`

	// ConfirmationCodeHash is the bcrypt hash of the last issued confirmation code.
	// It is empty when no code is pending and is never exposed in API responses.
	ConfirmationCodeHash string `json:"-" db:"confirmation_code"`

	// ConfirmationCodeExpiresAt bounds the validity of the pending code.
	ConfirmationCodeExpiresAt *time.Time `json:"-" db:"confirmation_code_expires_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"-" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role or is a superuser.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.IsSuperuser
}

// IsModerator reports whether the user holds the moderator role.
func (u User) IsModerator() bool {
	return u.Role == RoleModerator
}

// Normalize forces superusers to the admin role and defaults an empty role.
func (u *User) Normalize() {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.IsSuperuser {
		u.Role = RoleAdmin
	}
}
