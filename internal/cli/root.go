package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arc-self/board-hub/internal/config"
	coreconfig "github.com/arc-self/board-hub/pkg/config"
)

var migrateOnly bool

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the board-hub real-time server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Serve(migrateOnly)
		},
	}
	cmd.Flags().BoolVar(&migrateOnly, "migrate-only", false, "apply migrations and exit without starting the server")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the board-hub database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, _ := zap.NewProduction()
			defer logger.Sync()

			cfg := config.Load()
			vaultManager, err := coreconfig.NewSecretManager(cfg.VaultAddr, cfg.VaultToken)
			if err != nil {
				return err
			}
			secrets, err := vaultManager.GetKV2(cfg.SecretPath)
			if err != nil {
				return err
			}
			pgURL, _ := secrets["PG_URL"].(string)
			return runMigrations(context.Background(), pgURL, logger)
		},
	}
}

// Execute builds and runs the board-hub root command.
func Execute() error {
	root := &cobra.Command{
		Use:   "board-hub",
		Short: "Real-time collaborative whiteboard hub",
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	return root.Execute()
}
