package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role names the portal a principal belongs to.
type Role string

const (
	RoleClient     Role = "client"
	RoleCounsellor Role = "counsellor"
	RoleAdmin      Role = "admin"
	RoleOrgContact Role = "org_contact"
)

// Status is the lifecycle state of an identity. Identities are never hard
// deleted; deactivation is a status transition.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Identity is an authenticatable principal. PasswordHash is only ever a
// bcrypt digest; the plaintext never leaves the login handler.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ParseRole normalizes and validates a role string from untrusted input.
func ParseRole(s string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(s))) {
	case RoleClient:
		return RoleClient, nil
	case RoleCounsellor:
		return RoleCounsellor, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleOrgContact:
		return RoleOrgContact, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// ParseStatus validates a status string read back from the store.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.TrimSpace(strings.ToLower(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	case StatusSuspended:
		return StatusSuspended, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}
