package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// Deadline bounds every request's context by d. Handlers that honor the
// context give up on outstanding oracle calls when it expires.
func Deadline(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if d <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
