package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrutin/scrutin/internal/platform"
)

func newMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:       "migrate <up|down|version>",
		Short:     "Apply, roll back or inspect database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := firstNonEmpty(databaseURL, os.Getenv("DATABASE_URL"))
			if dsn == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			db, err := platform.Open(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			switch args[0] {
			case "up":
				if err := platform.AutoMigrate(db.DB); err != nil {
					return err
				}
			case "down":
				if err := platform.MigrateDown(db.DB); err != nil {
					return err
				}
			}

			v, dirty, err := platform.Version(db.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", v, dirty)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	return cmd
}
