// Package middleware holds the echo middleware shared by the HTTP API.
package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const requestIDKey = contextKey("X-Request-Id")

// RequestID returns the request id stored by Context.
func RequestID(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// Context stores the request id on the request context and echoes it back.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := context.WithValue(req.Context(), requestIDKey, requestID)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
