package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/card"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/expense"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
)

const (
	sendBackComment = "Sending the report back for E2E tests"

	// Standard Visa test number; enrolled once per account and reused.
	testVisaCardNumber = "4111111111111111"
)

// Config tunes the expenses generated inside reports.
type Config struct {
	ExpensesAmount  *expense.AmountRange
	ExpensesRefDate time.Time
	ExpensesCount   int

	// CreateEmptyDraftReports skips expense generation for draft reports.
	CreateEmptyDraftReports bool
}

// Service drives expense reports through their lifecycle state machine,
// creating the dependent expenses as needed.
type Service struct {
	client   *platform.Client
	acct     *account.Account
	cfg      Config
	expenses *expense.Generator
	logger   *slog.Logger
}

// Init wires a report service with its own expense generator, guaranteeing
// the account's category set is ready.
func Init(ctx context.Context, client *platform.Client, acct *account.Account, cfg Config, logger *slog.Logger) (*Service, error) {
	generator, err := expense.Init(ctx, client, acct, expense.Config{
		Amount:  cfg.ExpensesAmount,
		RefDate: cfg.ExpensesRefDate,
	}, logger)
	if err != nil {
		return nil, err
	}
	return NewService(client, acct, cfg, generator, logger), nil
}

func NewService(client *platform.Client, acct *account.Account, cfg Config, generator *expense.Generator, logger *slog.Logger) *Service {
	return &Service{
		client:   client,
		acct:     acct,
		cfg:      cfg,
		expenses: generator,
		logger:   logger,
	}
}

// Expenses exposes the underlying generator.
func (s *Service) Expenses() *expense.Generator {
	return s.expenses
}

func (s *Service) expensesPerReport() int {
	if s.cfg.ExpensesCount > 0 {
		return s.cfg.ExpensesCount
	}
	return 1
}

type idRef struct {
	ID string `json:"id"`
}

func bulkIDPayload(reports []Report) platform.Envelope[[]idRef] {
	refs := make([]idRef, len(reports))
	for i, r := range reports {
		refs[i] = idRef{ID: r.ID}
	}
	return platform.Envelope[[]idRef]{Data: refs}
}

func (s *Service) createEmptyDraftReport(ctx context.Context, purpose string) (Report, error) {
	payload := map[string]any{
		"source":  "WEBAPP",
		"purpose": purpose,
	}

	var out platform.Envelope[Report]
	err := s.client.Do(ctx, "create report", http.MethodPost, "/platform/v1/spender/reports", s.acct.OwnerAccessToken(),
		platform.Envelope[map[string]any]{Data: payload}, &out)
	if err != nil {
		return Report{}, err
	}
	return out.Data, nil
}

func (s *Service) addExpensesToReport(ctx context.Context, report Report, expenses []expense.Expense) (Report, error) {
	expenseIDs := make([]string, len(expenses))
	for i, exp := range expenses {
		expenseIDs[i] = exp.ID
	}

	payload := map[string]any{
		"id":          report.ID,
		"expense_ids": expenseIDs,
	}

	var out platform.Envelope[Report]
	err := s.client.Do(ctx, "add expenses to report", http.MethodPost, "/platform/v1/spender/reports/add_expenses", s.acct.OwnerAccessToken(),
		platform.Envelope[map[string]any]{Data: payload}, &out)
	if err != nil {
		return Report{}, err
	}
	return out.Data, nil
}

func (s *Service) createDraftReport(ctx context.Context, purpose string, emptyOnly bool) (Report, error) {
	draft, err := s.createEmptyDraftReport(ctx, purpose)
	if err != nil {
		return Report{}, err
	}
	if emptyOnly {
		return draft, nil
	}

	expenses, err := s.expenses.CreateReimbursableExpenses(ctx, s.expensesPerReport(), expense.StateComplete, nil, "")
	if err != nil {
		return Report{}, err
	}

	return s.addExpensesToReport(ctx, draft, expenses)
}

// CreateDraftReports creates count draft reports one at a time. Creation is
// strictly sequential: the backend races on seq_num assignment when reports
// are created concurrently.
func (s *Service) CreateDraftReports(ctx context.Context, count int, emptyOnly bool) ([]Report, error) {
	reports := make([]Report, 0, count)
	for i := 0; i < count; i++ {
		r, err := s.createDraftReport(ctx, fmt.Sprintf("#%d: Test Report", i+1), emptyOnly)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// CreateSubmittedReports creates drafts and submits each one by ID.
func (s *Service) CreateSubmittedReports(ctx context.Context, count int) ([]Report, error) {
	drafts, err := s.CreateDraftReports(ctx, count, false)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, 0, len(drafts))
	for _, draft := range drafts {
		var out platform.Envelope[Report]
		err := s.client.Do(ctx, "submit report", http.MethodPost, "/platform/v1/spender/reports/submit", s.acct.OwnerAccessToken(),
			platform.Envelope[idRef]{Data: idRef{ID: draft.ID}}, &out)
		if err != nil {
			return nil, err
		}
		reports = append(reports, out.Data)
	}
	return reports, nil
}

// CreateSentBackReports submits reports and sends each back concurrently with
// a fixed comment.
func (s *Service) CreateSentBackReports(ctx context.Context, count int) ([]Report, error) {
	submitted, err := s.CreateSubmittedReports(ctx, count)
	if err != nil {
		return nil, err
	}

	sentBack := make([]Report, len(submitted))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, r := range submitted {
		group.Go(func() error {
			payload := map[string]any{
				"id":      r.ID,
				"comment": sendBackComment,
			}
			var out platform.Envelope[Report]
			err := s.client.Do(groupCtx, "send back report", http.MethodPost, "/platform/v1/admin/reports/send_back", s.acct.OwnerAccessToken(),
				platform.Envelope[map[string]any]{Data: payload}, &out)
			if err != nil {
				return err
			}
			sentBack[i] = out.Data
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return sentBack, nil
}

// CreateApprovedReports submits reports and approves them all in one bulk
// call.
func (s *Service) CreateApprovedReports(ctx context.Context, count int) ([]Report, error) {
	submitted, err := s.CreateSubmittedReports(ctx, count)
	if err != nil {
		return nil, err
	}

	err = s.client.Do(ctx, "approve reports", http.MethodPost, "/platform/v1/admin/reports/approve/bulk", s.acct.OwnerAccessToken(),
		bulkIDPayload(submitted), nil)
	if err != nil {
		return nil, err
	}
	return submitted, nil
}

// CreateProcessingReports approves reports and marks them processed manually.
func (s *Service) CreateProcessingReports(ctx context.Context, count int) ([]Report, error) {
	approved, err := s.CreateApprovedReports(ctx, count)
	if err != nil {
		return nil, err
	}
	return s.bulkTransition(ctx, "process reports manually", "/platform/v1/admin/reports/process_manual/bulk", approved)
}

// CreatePaidReports approves reports and marks them paid.
func (s *Service) CreatePaidReports(ctx context.Context, count int) ([]Report, error) {
	approved, err := s.CreateApprovedReports(ctx, count)
	if err != nil {
		return nil, err
	}
	return s.bulkTransition(ctx, "mark reports paid", "/platform/v1/admin/reports/mark_paid/bulk", approved)
}

// bulkTransition performs a bulk state-transition call. The backend creates
// settlements and reimbursements asynchronously after approval; until they
// exist the call fails with a structured BulkError, which is retried after a
// fixed delay. Any other failure is fatal.
func (s *Service) bulkTransition(ctx context.Context, op, path string, reports []Report) ([]Report, error) {
	payload := bulkIDPayload(reports)

	err := platform.Poll(ctx, platform.DefaultPollInterval, func(ctx context.Context) error {
		err := s.client.Do(ctx, op, http.MethodPost, path, s.acct.OwnerAccessToken(), payload, nil)
		if err != nil && isSettlementPending(err) {
			s.logger.Info("reports do not have settlements/reimbursements yet, retrying", "op", op)
			return platform.Retryable(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

type bulkErrorResponse struct {
	Error string `json:"error"`
	Data  []struct {
		Message string `json:"message"`
	} `json:"data"`
}

// isSettlementPending matches the BulkError the backend returns while the
// settlement or reimbursement for an approved report has not materialized.
// The backend exposes no stable error code for this, so the known message
// strings are matched here, in one place.
func isSettlementPending(err error) bool {
	apiErr, ok := internal.AsAPIError(err)
	if !ok {
		return false
	}

	var resp bulkErrorResponse
	if json.Unmarshal([]byte(apiErr.Body), &resp) != nil {
		return false
	}
	if resp.Error != "BulkError" {
		return false
	}

	for _, entry := range resp.Data {
		switch entry.Message {
		case "Report does not have a settlement", "Report does not have a reimbursement":
			return true
		}
	}
	return false
}

// BulkCreate creates count reports in the given lifecycle state. Unknown
// states yield an empty list.
func (s *Service) BulkCreate(ctx context.Context, count int, state State) ([]Report, error) {
	switch state {
	case StateDraft:
		return s.CreateDraftReports(ctx, count, s.cfg.CreateEmptyDraftReports)
	case StateSubmitted:
		return s.CreateSubmittedReports(ctx, count)
	case StateSentBack:
		return s.CreateSentBackReports(ctx, count)
	case StateApproved:
		return s.CreateApprovedReports(ctx, count)
	case StateProcessing:
		return s.CreateProcessingReports(ctx, count)
	case StatePaid:
		return s.CreatePaidReports(ctx, count)
	default:
		return []Report{}, nil
	}
}

// CreateSubmittedReportForUser creates and submits a report in one admin call
// for expenses already created for a specific spender.
func (s *Service) CreateSubmittedReportForUser(ctx context.Context, expenseIDs []string) (Report, error) {
	payload := map[string]any{
		"expense_ids": expenseIDs,
	}

	var out platform.Envelope[Report]
	err := s.client.Do(ctx, "create and submit report", http.MethodPost, "/platform/v1/admin/reports/create_and_submit", s.acct.OwnerAccessToken(),
		platform.Envelope[map[string]any]{Data: payload}, &out)
	if err != nil {
		return Report{}, err
	}
	return out.Data, nil
}

// BulkApproveReportForUsers approves the given report IDs in one bulk call.
func (s *Service) BulkApproveReportForUsers(ctx context.Context, reportIDs []string) error {
	refs := make([]idRef, len(reportIDs))
	for i, id := range reportIDs {
		refs[i] = idRef{ID: id}
	}

	return s.client.Do(ctx, "approve reports", http.MethodPost, "/platform/v1/admin/reports/approve/bulk", s.acct.OwnerAccessToken(),
		platform.Envelope[[]idRef]{Data: refs}, nil)
}

// CreateCCCReport orchestrates a corporate-card export scenario: enrolls (or
// reuses) the test card, creates matched CCC expenses, submits them as one
// report, and approves it when state is approved.
func (s *Service) CreateCCCReport(ctx context.Context, state State) error {
	cardService, err := card.Init(ctx, s.client, s.acct, s.logger)
	if err != nil {
		return err
	}

	corporateCard, err := cardService.GetOrCreateCard(ctx, testVisaCardNumber)
	if err != nil {
		return err
	}

	expenseIDs, err := s.expenses.CreateCCCExpenses(ctx, s.expensesPerReport(), expense.StateComplete, corporateCard.ID, nil, nil)
	if err != nil {
		return err
	}

	if _, err := s.CreateSubmittedReportForUser(ctx, expenseIDs); err != nil {
		return err
	}

	if state == StateApproved {
		reportID, err := s.expenses.GetReportIDFromExpense(ctx, "admin", expenseIDs[0])
		if err != nil {
			return err
		}
		return s.BulkApproveReportForUsers(ctx, []string{reportID})
	}
	return nil
}
