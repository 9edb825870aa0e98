package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"fieldnav/internal/domain/user"
	"fieldnav/internal/general/config"
	"fieldnav/internal/general/jwt"
)

// GenerateUserToken mints a JWT for a seeded user.
//
// Typical use (dev-only):
//
//	token, _, err := cli.GenerateUserToken(secret, 2*time.Hour,
//	    "550e8400-e29b-41d4-a716-446655440001", "TECHNICIAN")
//
// Keep this package dev/internal only. Do not call it from production code paths.
func GenerateUserToken(secret string, ttl time.Duration, userID string, roleStr string) (string, jwt.Claims, error) {
	role, err := user.ParseRole(roleStr)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("invalid role %q: %w", roleStr, err)
	}

	mgr, err := jwt.NewManager(secret, ttl)
	if err != nil {
		return "", jwt.Claims{}, err
	}

	token, claims, err := mgr.IssueUserToken(userID, role)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("issue token: %w", err)
	}

	return token, *claims, nil
}

// RunToken parses token-mode flags from args and prints a token with its claims to w.
func RunToken(args []string, w io.Writer) error {
	fs := flag.NewFlagSet(ModeToken, flag.ContinueOnError)
	userID := fs.String("user-id", "", "UUID of the user (subject)")
	role := fs.String("role", user.RoleTechnician.String(), "User role: TECHNICIAN | DISPATCHER | ADMIN")
	secret := fs.String("secret", os.Getenv(config.EnvJWTSecret), "JWT HMAC secret (HS256)")
	ttl := fs.Duration("ttl", 2*time.Hour, "Token lifetime")
	AttachUsage(fs, ModeToken)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *secret == "" {
		fs.Usage()
		return errors.New("--user-id and --secret are required")
	}

	token, claims, err := GenerateUserToken(*secret, *ttl, *userID, *role)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "TOKEN:")
	fmt.Fprintln(w, token)
	fmt.Fprintln(w, "\nCLAIMS:")
	fmt.Fprintf(w, "  sub:  %s\n", claims.Subject)
	fmt.Fprintf(w, "  role: %s\n", claims.Role)
	fmt.Fprintf(w, "  iat:  %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  exp:  %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	return nil
}
