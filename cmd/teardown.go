package cmd

import (
	"context"
	"log"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
	"github.com/fylein/fyle-integrations-app-e2e-tests/pkg/logger"
	"github.com/spf13/cobra"
)

var teardownOwnerEmail string

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Delete a previously provisioned account",
	Long:  `Delete every org owned by the given account. Runs from a separate process, so owner credentials are re-derived from scratch.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		logger.Init(cfg.Environment)
		l := logger.LoggerWrapper()

		client := platform.NewClient(cfg.API.Domain, l)
		accounts := account.NewService(client, cfg, l)

		acct := accounts.ForEmail(teardownOwnerEmail)
		if err := accounts.Delete(context.Background(), acct, true); err != nil {
			log.Fatalf("failed to delete account: %v", err)
		}
	},
}
