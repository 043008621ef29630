package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	e "github.com/Ramsey-B/fern/internal/errors"
	"github.com/Ramsey-B/fern/internal/tracing"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta,omitempty"`
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		logger.WithContext(ctx).WithError(err).Error("api is returning an error")
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		var meta map[string]any

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		case httperror.IsHTTPError(err):
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			meta = httperr.Meta
		case e.Is(err, e.ErrInvalidInput):
			code = http.StatusBadRequest
			message = err.Error()
		case e.Is(err, e.ErrNotFound):
			code = http.StatusNotFound
			message = err.Error()
		case e.Is(err, e.ErrCorpusReadFailed):
			code = http.StatusServiceUnavailable
			message = "record store unavailable"
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: RequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}
