package user

import (
	"errors"
	"strings"
)

// User is the slice of the `users` row the navigation service needs.
type User struct {
	ID     string
	Name   string
	Role   Role
	Status Status
}

var ErrEmptyUserID = errors.New("user id cannot be empty")

// Validate checks invariants of the User entity.
func (u *User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrEmptyUserID
	}
	if !u.Role.Valid() {
		return ErrInvalidRole
	}
	if !u.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Access is what the role cache keeps per user.
type Access struct {
	Role   Role   `json:"role"`
	Status Status `json:"status"`
}

// Allowed reports whether the user may use the portal at all.
func (a Access) Allowed() bool { return a.Status.IsActive() && a.Role.Valid() }
