package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "fyle-e2e-data",
	Short: "E2E test data orchestration",
	Long:  `Provisions accounts, expenses and reports for integration E2E test runs.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	// CI exports plain environment variables; config files are for local runs.
	if os.Getenv("API_DOMAIN") != "" {
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}
	return &cfg, nil
}

func init() {
	setupCmd.Flags().StringVar(&setupOrgCurrency, "currency", "USD", "Currency of the provisioned org")

	seedCmd.Flags().IntVar(&seedCount, "count", 1, "Number of reports to create")
	seedCmd.Flags().StringVar(&seedState, "state", "draft", "Target report state (draft, submitted, sent_back, approved, processing, paid)")
	seedCmd.Flags().IntVar(&seedExpensesCount, "expenses", 1, "Expenses per report")
	seedCmd.Flags().BoolVar(&seedEmptyDrafts, "empty-drafts", false, "Create draft reports without expenses")
	seedCmd.Flags().BoolVar(&seedCCC, "ccc", false, "Create a corporate card report instead of reimbursable reports")

	teardownCmd.Flags().StringVar(&teardownOwnerEmail, "owner-email", "", "Owner email of the account to delete")
	_ = teardownCmd.MarkFlagRequired("owner-email")

	mockAPICmd.Flags().IntVar(&mockAPIPort, "port", 8085, "Port to serve the mock platform API on")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(mockAPICmd)
}
