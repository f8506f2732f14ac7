package main_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/expense"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/mockapi"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/report"
)

// These specs run the whole orchestration stack against the in-process
// platform double: provision an account, generate expenses and reports, walk
// the report lifecycle, tear the account down.
var _ = Describe("data generation against the platform double", func() {
	const (
		superAdminEmail    = "super.admin@fyle.in"
		superAdminPassword = "Password@1234"
	)

	var (
		server   *httptest.Server
		client   *platform.Client
		accounts *account.Service
		logger   *slog.Logger
		ctx      context.Context
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		double, err := mockapi.New(mockapi.Options{
			SuperAdminEmail:    superAdminEmail,
			SuperAdminPassword: superAdminPassword,
		}, logger)
		Expect(err).ToNot(HaveOccurred())

		server = httptest.NewServer(double.Router())
		DeferCleanup(server.Close)

		cfg := &internal.Config{
			Environment: "test",
			API:         internal.APIConfig{Domain: server.URL},
			SuperAdmin: internal.SuperAdminConfig{
				Email:    superAdminEmail,
				Password: superAdminPassword,
			},
		}
		Expect(cfg.Validate()).To(Succeed())

		client = platform.NewClient(server.URL, logger)
		accounts = account.NewService(client, cfg, logger)

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Minute)
		DeferCleanup(cancel)
	})

	listReports := func(acct *account.Account) []report.Report {
		var out platform.Envelope[[]report.Report]
		err := client.Do(ctx, "list reports", http.MethodGet, "/platform/v1/spender/reports/", acct.OwnerAccessToken(), nil, &out)
		Expect(err).ToNot(HaveOccurred())
		return out.Data
	}

	It("should provision an account with a renamed org and a usable token", func() {
		acct, err := accounts.Create(ctx, "USD")

		Expect(err).ToNot(HaveOccurred())
		Expect(acct.OwnerEmail).To(HaveSuffix("@" + account.AccountDomain))
		Expect(acct.OrgID).ToNot(BeEmpty())
		Expect(acct.OwnerAccessToken()).ToNot(BeEmpty())

		var orgs platform.Envelope[[]map[string]any]
		err = client.Do(ctx, "list orgs", http.MethodGet, "/platform/v1/spender/orgs", acct.OwnerAccessToken(), nil, &orgs)
		Expect(err).ToNot(HaveOccurred())
		Expect(orgs.Data).To(HaveLen(1))
		Expect(orgs.Data[0]["name"]).To(Equal(account.OrgName))
	})

	It("should drive a report with two expenses through to processing", func() {
		acct, err := accounts.Create(ctx, "USD")
		Expect(err).ToNot(HaveOccurred())

		reports, err := report.Init(ctx, client, acct, report.Config{
			ExpensesAmount: &expense.AmountRange{Min: -100, Max: 100},
			ExpensesCount:  2,
		}, logger)
		Expect(err).ToNot(HaveOccurred())

		created, err := reports.BulkCreate(ctx, 1, report.StateProcessing)
		Expect(err).ToNot(HaveOccurred())
		Expect(created).To(HaveLen(1))

		listed := listReports(acct)
		Expect(listed).To(HaveLen(1))
		Expect(listed[0].State).To(Equal(report.StateProcessing))
		Expect(listed[0].NumExpenses).To(Equal(2))
	})

	It("should create draft reports with sequential numbering", func() {
		acct, err := accounts.Create(ctx, "USD")
		Expect(err).ToNot(HaveOccurred())

		reports, err := report.Init(ctx, client, acct, report.Config{ExpensesCount: 1}, logger)
		Expect(err).ToNot(HaveOccurred())

		created, err := reports.BulkCreate(ctx, 3, report.StateDraft)
		Expect(err).ToNot(HaveOccurred())
		Expect(created).To(HaveLen(3))

		listed := listReports(acct)
		Expect(listed).To(HaveLen(3))
		seqNums := make([]string, len(listed))
		for i, r := range listed {
			seqNums[i] = r.SeqNum
		}
		Expect(seqNums).To(Equal([]string{"C/000001", "C/000002", "C/000003"}))
	})

	It("should survive transient signup failures", func() {
		double, err := mockapi.New(mockapi.Options{
			SignupFailures:     []int{http.StatusServiceUnavailable},
			SuperAdminEmail:    superAdminEmail,
			SuperAdminPassword: superAdminPassword,
		}, logger)
		Expect(err).ToNot(HaveOccurred())
		flaky := httptest.NewServer(double.Router())
		defer flaky.Close()

		cfg := &internal.Config{
			API: internal.APIConfig{Domain: flaky.URL},
			SuperAdmin: internal.SuperAdminConfig{
				Email:    superAdminEmail,
				Password: superAdminPassword,
			},
		}
		flakyClient := platform.NewClient(flaky.URL, logger)
		flakyAccounts := account.NewService(flakyClient, cfg, logger)

		acct, err := flakyAccounts.Create(ctx, "USD")
		Expect(err).ToNot(HaveOccurred())
		Expect(acct.OrgID).ToNot(BeEmpty())
	})

	It("should tear the account down completely", func() {
		acct, err := accounts.Create(ctx, "USD")
		Expect(err).ToNot(HaveOccurred())

		Expect(accounts.Delete(ctx, acct, false)).To(Succeed())

		var orgs []map[string]any
		err = client.Do(ctx, "list orgs", http.MethodGet, "/api/orgs", acct.OwnerAccessToken(), nil, &orgs)
		Expect(err).ToNot(HaveOccurred())
		Expect(orgs).To(BeEmpty())
	})
})
