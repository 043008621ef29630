package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/database"
)

func newMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:     "migrate",
		Short:   "Apply the record store schema migrations",
		GroupID: "ops",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			migCfg := app.Config.Migration(down)
			svc := database.NewMigrationService(app.Logger, &migCfg)
			return svc.MigratePostgres(app.sqlDB, app.Config.DatabaseName)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll every migration back")
	return cmd
}
