package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
)

// Logger logs every API request once it completes and records its duration.
// Probe and scrape routes are timed but not logged.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				c.Error(err)
			}

			ctx := c.Request().Context()
			started := fernctx.RequestFrom(ctx).StartedAt
			if started.IsZero() {
				started = time.Now()
			}
			elapsed := time.Since(started)
			status := c.Response().Status

			metrics.HTTPRequestDuration.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Observe(elapsed.Seconds())

			if quietRoute(c.Path()) {
				return nil
			}

			fields := fernctx.Fields(ctx)
			fields["status"] = status
			fields["response_time_ms"] = elapsed.Milliseconds()
			fields["response_size"] = c.Response().Size

			log := logger.WithContext(ctx).WithFields(fields)
			if status >= http.StatusInternalServerError {
				log.Warn("Request failed")
				return nil
			}
			log.Info("Request")
			return nil
		}
	}
}

func quietRoute(path string) bool {
	return path == "/metrics" || strings.Contains(path, "/health")
}
