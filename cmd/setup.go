package cmd

import (
	"context"
	"log"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
	"github.com/fylein/fyle-integrations-app-e2e-tests/pkg/logger"
	"github.com/spf13/cobra"
)

var setupOrgCurrency string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision a test account",
	Long:  `Provision a fresh account with a verified owner and a fully initialized org.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		logger.Init(cfg.Environment)
		l := logger.LoggerWrapper()

		client := platform.NewClient(cfg.API.Domain, l)
		accounts := account.NewService(client, cfg, l)

		acct, err := accounts.Create(context.Background(), setupOrgCurrency)
		if err != nil {
			log.Fatalf("failed to provision account: %v", err)
		}

		l.Info("account ready",
			"owner_email", acct.OwnerEmail,
			"org_id", acct.OrgID,
			"source", acct.Source.String(),
		)
	},
}
