package auth

import (
	"context"
	"fmt"

	"fieldnav/internal/domain/user"
	"fieldnav/internal/general/cache"
	"fieldnav/internal/ports"
)

// RoleCache answers "may this user still act, and as what" without a
// database round trip per request. Entries expire after the configured TTL
// and are dropped explicitly when a user's role or status changes.
type RoleCache struct {
	entries *cache.TTLCache[user.Access]
	users   ports.UserRepository
	uow     ports.UnitOfWork
}

func NewRoleCache(entries *cache.TTLCache[user.Access], users ports.UserRepository, uow ports.UnitOfWork) *RoleCache {
	return &RoleCache{entries: entries, users: users, uow: uow}
}

// Access implements jwt.AccessChecker.
func (c *RoleCache) Access(ctx context.Context, userID string) (user.Access, error) {
	return c.entries.GetOrLoad(ctx, userID, func(ctx context.Context) (user.Access, error) {
		var acc user.Access
		err := c.uow.WithinTx(ctx, func(ctx context.Context) error {
			u, err := c.users.GetByID(ctx, userID)
			if err != nil {
				return err
			}
			acc = user.Access{Role: u.Role, Status: u.Status}
			return nil
		})
		if err != nil {
			return user.Access{}, fmt.Errorf("load access for %s: %w", userID, err)
		}
		return acc, nil
	})
}

// Invalidate forgets the cached access of the given users.
func (c *RoleCache) Invalidate(ctx context.Context, userIDs ...string) error {
	return c.entries.Invalidate(ctx, userIDs...)
}
