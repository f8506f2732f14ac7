package cmd

import (
	"context"
	"log"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/report"
	"github.com/fylein/fyle-integrations-app-e2e-tests/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	seedCount         int
	seedState         string
	seedExpensesCount int
	seedEmptyDrafts   bool
	seedCCC           bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Provision an account and seed reports in a target state",
	Long:  `Provision a test account, then create reports (with their expenses) in the requested lifecycle state.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		logger.Init(cfg.Environment)
		l := logger.LoggerWrapper()
		ctx := context.Background()

		client := platform.NewClient(cfg.API.Domain, l)
		accounts := account.NewService(client, cfg, l)

		acct, err := accounts.Create(ctx, "USD")
		if err != nil {
			log.Fatalf("failed to provision account: %v", err)
		}

		reports, err := report.Init(ctx, client, acct, report.Config{
			ExpensesCount:           seedExpensesCount,
			CreateEmptyDraftReports: seedEmptyDrafts,
		}, l)
		if err != nil {
			log.Fatalf("failed to initialize report service: %v", err)
		}

		if seedCCC {
			if err := reports.CreateCCCReport(ctx, report.State(seedState)); err != nil {
				log.Fatalf("failed to create corporate card report: %v", err)
			}
			l.Info("corporate card report created", "owner_email", acct.OwnerEmail, "state", seedState)
			return
		}

		created, err := reports.BulkCreate(ctx, seedCount, report.State(seedState))
		if err != nil {
			log.Fatalf("failed to seed reports: %v", err)
		}
		l.Info("reports seeded",
			"owner_email", acct.OwnerEmail,
			"org_id", acct.OrgID,
			"count", len(created),
			"state", seedState,
		)
	},
}
