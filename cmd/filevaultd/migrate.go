package main

import (
	"filevault/pkg/database"
	"filevault/pkg/log"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closeLog, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeLog()

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info().Msg("Database is up to date")
			return nil
		},
	}
}
