package jwt

import (
	"time"

	"fieldnav/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines our canonical JWT claims payload.
type Claims struct {
	Role user.Role `json:"role"` // TECHNICIAN / DISPATCHER / ADMIN
	jwtlib.RegisteredClaims
}

var _ jwtlib.Claims = (*Claims)(nil)

func NewUserClaims(userID string, role user.Role, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// CanActFor reports whether the holder may drive navigation for technicianID.
func (c *Claims) CanActFor(technicianID string) bool {
	if c == nil {
		return false
	}
	switch c.Role {
	case user.RoleAdmin, user.RoleDispatcher:
		return true
	case user.RoleTechnician:
		return c.Subject == technicianID
	default:
		return false
	}
}
