package user

import (
	"errors"
	"strings"
)

// Role is a portal role as stored in the `users.role` column.
type Role string

const (
	RoleTechnician Role = "TECHNICIAN"
	RoleDispatcher Role = "DISPATCHER"
	RoleAdmin      Role = "ADMIN"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes (uppercases+trims) and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleTechnician, RoleDispatcher, RoleAdmin:
		return true
	default:
		return false
	}
}

func (role Role) String() string {
	return string(role)
}

// CanNavigate reports whether the role may run a navigation session for itself.
func (role Role) CanNavigate() bool { return role == RoleTechnician || role == RoleAdmin }

// CanWatchFleet reports whether the role may subscribe to fleet progress.
func (role Role) CanWatchFleet() bool { return role == RoleDispatcher || role == RoleAdmin }
