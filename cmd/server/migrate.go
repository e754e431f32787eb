package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/darim/internal/database"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending migrations for the users and user_keys tables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			cmd.Println("Connecting to database...")
			db, err := database.NewMariaDB(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to MariaDB: %w", err)
			}
			defer db.Close()

			cmd.Println("Running migrations...")
			if err := database.RunMigrations(db); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			cmd.Println("Migrations completed successfully")
			return nil
		},
	}
}
