// Package cmd implements the fern command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configFile string
	envFiles   []string

	// Version is set by main.
	Version = "dev"

	app *App
)

var rootCmd = &cobra.Command{
	Use:   "fern",
	Short: "Company record resolution and merge engine",
	Long: `fern matches incoming Japanese company records against a stored corpus,
merges duplicates into a single survivor and commits the result in
bounded, retryable batches.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		app, err = NewApp(cmd.Context(), configFile, envFiles)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		if app == nil {
			return nil
		}
		return app.Close(context.WithoutCancel(cmd.Context()))
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version string) {
	Version = version

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if app != nil {
			_ = app.Close(context.Background())
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env", ".env.local"}, ".env files to load")

	rootCmd.AddGroup(
		&cobra.Group{ID: "runs", Title: "Resolution Runs:"},
		&cobra.Group{ID: "ops", Title: "Operations:"},
	)
	rootCmd.AddCommand(
		newImportCmd(),
		newDedupeCmd(),
		newBackfillCmd(),
		newServeCmd(),
		newMigrateCmd(),
	)
}
