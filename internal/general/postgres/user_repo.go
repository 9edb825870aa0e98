package postgres

import (
	"context"
	"errors"
	"fmt"

	"fieldnav/internal/domain/user"
	"fieldnav/internal/ports"

	"github.com/jackc/pgx/v5"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepo reads portal users.
type UserRepo struct{}

func NewUserRepo() ports.UserRepository {
	return &UserRepo{}
}

// GetByID returns one user by id.
func (repo *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out        user.User
		roleText   string
		statusText string
	)
	err = tx.QueryRow(ctx, `
		SELECT id, name, role, status
		FROM users
		WHERE id = $1
	`, id).Scan(&out.ID, &out.Name, &roleText, &statusText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if out.Role, err = user.ParseRole(roleText); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	if out.Status, err = user.ParseStatus(statusText); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return &out, nil
}
