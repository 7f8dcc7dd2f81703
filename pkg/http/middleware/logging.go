package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"FMPull/pkg/logger"
)

// RequestLogging logs one line per request. 5xx responses are logged as
// errors, requests slower than slow as warnings.
func RequestLogging(lgr *logger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			elapsed := time.Since(start)
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("route", routeLabel(c)),
				logger.Int("status", res.Status),
				logger.Duration("duration_ms", elapsed),
				logger.Int64("bytes", res.Size),
			}
			switch {
			case res.Status >= 500:
				lgr.Error("http request failed", fields...)
			case slow > 0 && elapsed >= slow:
				lgr.Warn("http request slow", fields...)
			default:
				lgr.Debug("http request", fields...)
			}
			return nil
		}
	}
}

// routeLabel prefers the registered route template to keep label cardinality low.
func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}
