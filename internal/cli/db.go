package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/basalthq/basalt/internal/database"
	"github.com/basalthq/basalt/internal/database/migrations"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := database.Open(&cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		applied, err := migrations.GetApplied(context.Background(), db.DB)
		if err != nil {
			return err
		}

		fmt.Printf("database: %s\n", cfg.Database.Path)
		for _, m := range applied {
			fmt.Printf("  %-32s %s\n", m.ID, m.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbStatusCmd)
	rootCmd.AddCommand(dbCmd)
}
