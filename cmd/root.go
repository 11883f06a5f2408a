package cmd

import (
	"behavior-backend/cmd/migrate"
	"behavior-backend/cmd/serve"

	"github.com/spf13/cobra"
)

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "behavior-backend",
		Short:        "Behavior monitoring control-plane backend",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional config file; environment variables take precedence")

	rootCmd.AddCommand(
		serve.Command(&configFile),
		migrate.Command(&configFile),
	)
	return rootCmd
}
