package jwt

import (
	"context"
	"errors"
	"net/http"

	"fieldnav/internal/domain/user"
)

// AccessChecker returns the current role and status of a user.
// auth.RoleCache implements it on top of Redis and Postgres.
type AccessChecker interface {
	Access(ctx context.Context, userID string) (user.Access, error)
}

// Authorizer validates tokens and, when an AccessChecker is set, re-checks
// the account so revoked users are locked out before their token expires.
type Authorizer struct {
	mgr    *Manager
	access AccessChecker
}

func NewAuthorizer(mgr *Manager, access AccessChecker) *Authorizer {
	return &Authorizer{mgr: mgr, access: access}
}

// Authorize parses raw and enforces RBAC against allowed.
func (a *Authorizer) Authorize(ctx context.Context, raw string, allowed ...user.Role) (*Claims, error) {
	claims, err := a.mgr.ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}
	if a.access != nil {
		acc, err := a.access.Access(ctx, claims.Subject)
		if err != nil {
			return nil, err
		}
		if !acc.Allowed() {
			return nil, ErrAccountInactive
		}
		claims.Role = acc.Role
	}
	if err := RoleAllowed(claims, allowed...); err != nil {
		return nil, err
	}
	return claims, nil
}

// Middleware validates tokens and injects claims into the request context.
func (a *Authorizer) Middleware(allowedRoles ...user.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, err := FromAuthorization(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			claims, err := a.Authorize(r.Context(), raw, allowedRoles...)
			switch {
			case err == nil:
			case errors.Is(err, ErrRoleForbidden), errors.Is(err, ErrAccountInactive):
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			default:
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			next(w, r.WithContext(InjectClaims(r.Context(), claims)))
		}
	}
}

// RequireClaims extracts JWT claims from the request context.
func RequireClaims(r *http.Request) *Claims {
	c, _ := FromContext(r.Context())
	return c
}
