package commands

import (
	"fruittrace/cmd/tracectl/output"
	"fruittrace/internal/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema",
		Long: `Create or update every table the server owns.

Examples:
  tracectl migrate
  tracectl migrate --db-driver sqlite --db file:fruittrace.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := g.open()
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.AutoMigrate(db); err != nil {
				return err
			}
			output.Success(cmd.OutOrStdout(), "Schema is up to date (%d tables)", len(database.Models()))
			return nil
		},
	}
}
