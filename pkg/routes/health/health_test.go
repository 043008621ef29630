package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func serve(c *Checker, path string) *httptest.ResponseRecorder {
	e := echo.New()
	c.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(NewChecker("v1").AddCheck("store", pinger{}), "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "v1", status.Version)
	assert.Contains(t, status.Checks, "store")
	assert.NotContains(t, status.Checks, "kafka")
}

func TestHealthBrokerDown(t *testing.T) {
	rec := serve(NewChecker("v1").
		AddCheck("store", pinger{}).
		AddCheck("kafka", pinger{err: errors.New("dial tcp: refused")}), "/api/v1/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Checks["kafka"].Status)
	assert.Equal(t, "healthy", status.Checks["store"].Status)
}

func TestReady(t *testing.T) {
	c := NewChecker("v1")
	assert.Equal(t, http.StatusServiceUnavailable, serve(c, "/api/v1/health/ready").Code)

	c.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(c, "/api/v1/health/ready").Code)
	assert.Equal(t, http.StatusOK, serve(c, "/api/v1/health/live").Code)
}
