package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/healthguard/healthguard/internal/platform/apperr"
)

// RequireRole rejects callers whose role is not one of roles. It is a coarse
// route-level gate; record ownership is decided by Authorize.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return apperr.Unauthenticated("authentication required")
			}
			for _, r := range roles {
				if p.Role == r {
					return next(c)
				}
			}
			return apperr.Forbidden("role " + string(p.Role) + " may not perform this action")
		}
	}
}
