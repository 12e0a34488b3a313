package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/basalthq/basalt/internal/database"
	"github.com/basalthq/basalt/internal/engine"
	"github.com/basalthq/basalt/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Basalt server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := applyLogging(&cfg.Logging)

		db, err := database.Open(&cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		e, err := engine.New(cfg, db, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := e.LoadFunctions(ctx); err != nil {
			return err
		}
		e.Start(ctx)

		srv := server.New(cfg, e, db, logger)
		err = srv.Run(ctx)

		e.Wait()
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
