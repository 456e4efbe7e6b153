package auth

import (
	"errors"

	"github.com/nerrad567/fleet-relay/internal/infrastructure/jsonstore"
)

// Role represents an authorisation tier.
type Role string

const (
	// RoleUser may browse, search and download files and send device commands.
	RoleUser Role = "user"

	// RoleAdmin additionally manages users and devices and reads the audit log.
	RoleAdmin Role = "admin"

	// RoleDevice is carried in device tokens. It is not a user role and
	// cannot be assigned through the registry.
	RoleDevice Role = "device"
)

// ValidRoles is the set of roles a user may hold (excludes device).
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidRole returns true if the role can be assigned to a user.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is a chat account allowed to talk to the bot. The ID is the chat
// platform's user id rendered as a decimal string; it is the registry key
// and is not stored inside the record.
type User struct {
	ID               string              `json:"-"`
	Role             Role                `json:"role"`
	RegistrationDate jsonstore.Timestamp `json:"registration_date"`
	LastActive       jsonstore.Timestamp `json:"last_active"`
	Active           bool                `json:"active"`
}

// IsAdmin reports whether the user is an active admin.
func (u User) IsAdmin() bool {
	return u.Active && u.Role == RoleAdmin
}

// Sentinel errors for auth operations.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidUserID = errors.New("invalid user id")
	ErrInvalidRole   = errors.New("invalid role")
	ErrTokenInvalid  = errors.New("invalid token")
	ErrForbidden     = errors.New("insufficient permissions")
)
