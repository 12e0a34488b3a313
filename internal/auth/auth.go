// Package auth provides the caller identity and capability model for Basalt.
package auth

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnknownMode = errors.New("unknown auth mode")

// Mode is the capability a function requires from its caller.
type Mode string

const (
	// ModePublic allows anonymous callers.
	ModePublic Mode = "public"
	// ModeAuthenticated requires any authenticated principal.
	ModeAuthenticated Mode = "authenticated"
	// ModeAdmin requires an admin principal.
	ModeAdmin Mode = "admin"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePublic, ModeAuthenticated, ModeAdmin:
		return Mode(s), nil
	case "":
		return ModePublic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Role constants for the built-in role system.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is the identity behind a call. A nil *Principal means anonymous.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// IsAdmin returns true if the principal has the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// System returns the internal principal used for scheduled fires.
func System() *Principal {
	return &Principal{ID: "system", Role: RoleAdmin}
}

// Check reports whether the principal satisfies the required mode.
func Check(p *Principal, mode Mode) bool {
	switch mode {
	case ModePublic:
		return true
	case ModeAuthenticated:
		return p != nil && p.ID != ""
	case ModeAdmin:
		return p.IsAdmin()
	default:
		return false
	}
}

type contextKey string

const principalKey contextKey = "basalt.principal"

// ContextWithPrincipal attaches a principal to the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal, or nil for anonymous callers.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}
