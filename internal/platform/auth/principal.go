package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/healthguard/healthguard/internal/platform/apperr"
)

// Role is the coarse permission class of a user.
type Role string

const (
	RolePatient Role = "Patient"
	RoleDoctor  Role = "Doctor"
	RoleAdmin   Role = "Admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole accepts the canonical spelling or any case variant of it.
func ParseRole(s string) (Role, error) {
	for _, r := range []Role{RolePatient, RoleDoctor, RoleAdmin} {
		if strings.EqualFold(string(r), s) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Principal is the authenticated caller resolved from a bearer token.
type Principal struct {
	UserID    int64
	Role      Role
	Email     string
	FirstName string
	LastName  string
}

func (p Principal) Is(r Role) bool {
	return p.Role == r
}

type contextKey string

const PrincipalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// PrincipalFromContext returns the caller stored by JWTMiddleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(Principal)
	return p, ok
}

// RequirePrincipal is PrincipalFromContext for services: a missing caller is
// an Unauthenticated error.
func RequirePrincipal(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID <= 0 {
		return Principal{}, apperr.Unauthenticated("authentication required")
	}
	return p, nil
}
