package serve

import (
	"fmt"
	"os/signal"
	"syscall"

	"behavior-backend/internal/app"
	"behavior-backend/internal/config"
	"behavior-backend/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Command creates the command that runs the API server.
func Command(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the detection workers and the notification hub",
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

			if cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			if cfg.DetectorTimeout == 0 {
				log.Warn("DETECTOR_TIMEOUT is 0; a hung detector call will occupy a worker indefinitely")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				log.Error("startup failed", zap.Error(err))
				return err
			}
			return a.Run(ctx)
		},
	}
}
