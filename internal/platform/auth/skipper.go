package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths that bypass authentication: infrastructure
// endpoints, the sign-in endpoints and the WebSocket endpoint, which
// authenticates with its first message.
var publicPaths = map[string]bool{
	"/health":                       true,
	"/health/db":                    true,
	"/metrics":                      true,
	"/api/v1/ws":                    true,
	"/api/v1/auth/login":            true,
	"/api/v1/auth/signup":           true,
	"/api/v1/auth/anonymous":        true,
	"/api/v1/auth/social/:provider": true,
	"/api/v1/auth/verify-email":     true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path is a public route.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
