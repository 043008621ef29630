package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// Pinger is anything whose reachability the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

type namedPinger struct {
	name   string
	pinger Pinger
}

// Checker serves liveness, readiness and dependency health.
type Checker struct {
	checks    []namedPinger
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewChecker creates a checker with no dependency checks.
func NewChecker(version string) *Checker {
	return &Checker{version: version, startTime: time.Now()}
}

// AddCheck registers a dependency. Checks run in registration order.
func (c *Checker) AddCheck(name string, p Pinger) *Checker {
	c.checks = append(c.checks, namedPinger{name: name, pinger: p})
	return c
}

// SetReady marks whether a corpus snapshot is loaded.
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

func run(ctx context.Context, p Pinger) *CheckResult {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return &CheckResult{Status: statusUnhealthy, Message: err.Error()}
	}
	return &CheckResult{Status: statusHealthy, Latency: time.Since(start).String()}
}

// Health pings every registered dependency. Any failure makes the
// service unhealthy.
func (c *Checker) Health(ctx echo.Context) error {
	status := &HealthStatus{
		Status:     statusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult, len(c.checks)),
		ReportedAt: time.Now(),
	}

	reqCtx := ctx.Request().Context()
	for _, check := range c.checks {
		result := run(reqCtx, check.pinger)
		if result.Status == statusUnhealthy {
			status.Status = statusUnhealthy
		}
		status.Checks[check.name] = result
	}

	code := http.StatusOK
	if status.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, status)
}

func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready fails until the first snapshot has loaded.
func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
