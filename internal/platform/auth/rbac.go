package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RoleResolver returns the application role of a principal, or "" when none
// is assigned.
type RoleResolver interface {
	ResolveRole(ctx context.Context, uid string) (string, error)
}

const roleContextKey = "auth_role"

// RequireRole returns middleware that admits callers whose stored role is one
// of roles. The role is looked up per request.
func RequireRole(resolver RoleResolver, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := UserIDFromContext(c.Request().Context())
			if uid == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			role, err := resolver.ResolveRole(c.Request().Context(), uid)
			if err != nil {
				return echo.NewHTTPError(http.StatusForbidden, "unable to resolve role")
			}
			for _, required := range roles {
				if role == required {
					c.Set(roleContextKey, role)
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RoleFromEcho returns the role admitted by RequireRole.
func RoleFromEcho(c echo.Context) string {
	role, _ := c.Get(roleContextKey).(string)
	return role
}
