package user

import (
	"errors"
	"strings"
)

// Status is the account status of a portal user.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusOnLeave     Status = "ON_LEAVE"
	StatusDeactivated Status = "DEACTIVATED"
)

var ErrInvalidStatus = errors.New("invalid status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

func (status Status) Valid() bool {
	switch status {
	case StatusActive, StatusOnLeave, StatusDeactivated:
		return true
	default:
		return false
	}
}

func (status Status) String() string {
	return string(status)
}

func (status Status) IsActive() bool { return status == StatusActive }
