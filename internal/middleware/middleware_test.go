package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	e "github.com/Ramsey-B/fern/internal/errors"
)

func newServer(handler echo.HandlerFunc) *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	srv := echo.New()
	srv.HTTPErrorHandler = Error(logger)
	srv.Use(Context(), Logger(logger))
	srv.GET("/", handler)
	return srv
}

func get(srv *echo.Echo, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderXRequestID, header)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestContextRequestID(t *testing.T) {
	var seen string
	srv := newServer(func(c echo.Context) error {
		seen = RequestID(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	rec := get(srv, "req-1")
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))

	rec = get(srv, "")
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(echo.HeaderXRequestID))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"http error", httperror.NewHTTPError(http.StatusConflict, "taken"), http.StatusConflict},
		{"echo error", echo.NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot},
		{"invalid input", fmt.Errorf("bad row: %w", e.ErrInvalidInput), http.StatusBadRequest},
		{"not found", fmt.Errorf("r1: %w", e.ErrNotFound), http.StatusNotFound},
		{"corpus read", &e.CorpusReadError{Cursor: "r1", Err: fmt.Errorf("timeout")}, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(func(echo.Context) error { return tt.err })

			rec := get(srv, "req-2")
			assert.Equal(t, tt.code, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "req-2", body.RequestID)
			assert.NotEmpty(t, body.Message)
		})
	}
}
