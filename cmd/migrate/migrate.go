package migrate

import (
	"fmt"

	"behavior-backend/internal/config"
	"behavior-backend/internal/database"
	"behavior-backend/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Command creates the command that applies the schema and seeds the admin
// account without starting any server.
func Command(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configFile)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "behavior-backend")
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer log.Sync() //nolint:errcheck

			db, err := database.Open(cfg, log)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			created, err := database.SeedAdmin(db, cfg.AdminUsername, cfg.AdminPassword)
			if err != nil {
				return err
			}
			log.Info("schema up to date", zap.Bool("admin_created", created))
			return nil
		},
	}
}
