package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
)

// Logger writes one line per request. Server errors log at error level,
// client errors at warn.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			entry := logger.WithContext(req.Context()).WithFields(map[string]any{
				"request_id":     RequestID(req.Context()),
				"method":         req.Method,
				"route":          c.Path(),
				"uri":            req.RequestURI,
				"status":         res.Status,
				"remote_ip":      c.RealIP(),
				"duration_ms":    time.Since(start).Milliseconds(),
				"response_bytes": res.Size,
			})
			switch {
			case res.Status >= 500:
				entry.Error("Request failed")
			case res.Status >= 400:
				entry.Warn("Request rejected")
			default:
				entry.Info("Request")
			}
			return nil
		}
	}
}
