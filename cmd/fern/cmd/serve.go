package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/resolution"
)

func newServeCmd() *cobra.Command {
	var policy string

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the read-only match and duplicate preview API",
		GroupID: "ops",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), policy)
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "matching policy YAML file")
	return cmd
}

func serve(ctx context.Context, policy string) error {
	if err := app.Start(ctx); err != nil {
		return err
	}
	r, err := app.Reconciler(policy)
	if err != nil {
		return err
	}
	logger := app.Logger

	checker := health.NewChecker(Version).AddCheck("store", app.repo)
	if app.producer != nil {
		checker.AddCheck("kafka", app.producer)
	}
	handler := resolution.NewHandler(r, checker, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context(), middleware.Logger(logger))
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	checker.RegisterRoutes(e)
	handler.Register(e.Group("/api/v1"))

	if _, err := handler.Reload(ctx); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", app.Config.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("Starting HTTP server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
