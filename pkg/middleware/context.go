package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
)

// HeaderUserID lets trusted callers name the user when authentication is off.
const HeaderUserID = "X-User-ID"

// Context attaches a fernctx.Request to every request and echoes the request
// id back to the caller.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := fernctx.WithRequest(req.Context(), fernctx.Request{
				ID:        requestID,
				Method:    req.Method,
				Route:     c.Path(),
				RemoteIP:  c.RealIP(),
				UserID:    req.Header.Get(HeaderUserID),
				StartedAt: time.Now(),
			})
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
