package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// SecurityHeaders sets the hardening headers for a JSON API that serves
// patient data, and forbids caching of every response.
func SecurityHeaders(hsts bool) echo.MiddlewareFunc {
	cfg := echomw.SecureConfig{
		XSSProtection:         "0",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
	if hsts {
		cfg.HSTSMaxAge = 31536000
	}
	secure := echomw.SecureWithConfig(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return secure(func(c echo.Context) error {
			c.Response().Header().Set("Cache-Control", "no-store")
			return next(c)
		})
	}
}
