package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/category"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
)

// batchSize bounds how many create calls run concurrently. Three keeps the
// backend rate-sensitive endpoints happy while still being much faster than
// sequential creation. Each batch fully completes before the next starts.
const batchSize = 3

var errNotMatched = errors.New("expenses not auto-created from corporate card transactions yet")

// Generator creates reimbursable and corporate-card expenses with seeded
// random amounts and dates.
type Generator struct {
	client     *platform.Client
	acct       *account.Account
	categories *category.Manager
	cfg        Config
	logger     *slog.Logger

	// rand.Rand is not safe for concurrent use; batched creation shares one
	// seeded source, so picks are serialized.
	mu  sync.Mutex
	rng *rand.Rand

	sourceAccounts []SourceAccount
}

func NewGenerator(client *platform.Client, acct *account.Account, categories *category.Manager, cfg Config, logger *slog.Logger) *Generator {
	return &Generator{
		client:     client,
		acct:       acct,
		categories: categories,
		cfg:        cfg,
		logger:     logger,
		// fixed seed keeps generated amounts and dates reproducible across runs
		rng: rand.New(rand.NewSource(0)),
	}
}

// Init builds a generator and guarantees the deterministic category set
// exists for the account before any expense is created.
func Init(ctx context.Context, client *platform.Client, acct *account.Account, cfg Config, logger *slog.Logger) (*Generator, error) {
	categories := category.NewManager(client, acct, logger)
	if _, err := categories.CreateOrUpdateCategories(ctx); err != nil {
		return nil, err
	}
	return NewGenerator(client, acct, categories, cfg, logger), nil
}

// Categories exposes the category manager for callers that need category
// picks of their own.
func (g *Generator) Categories() *category.Manager {
	return g.categories
}

func (g *Generator) randomAmount() float64 {
	min, max := 1.0, 100.0
	if g.cfg.Amount != nil {
		min, max = g.cfg.Amount.Min, g.cfg.Amount.Max
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return min + g.rng.Float64()*(max-min)
}

func (g *Generator) randomSpentAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cfg.DateRange != nil {
		window := g.cfg.DateRange.End.Sub(g.cfg.DateRange.Start)
		return g.cfg.DateRange.Start.Add(time.Duration(g.rng.Float64() * float64(window)))
	}

	refDate := g.cfg.RefDate
	if refDate.IsZero() {
		refDate = time.Now()
	}
	const window = 30 * 24 * time.Hour
	return refDate.Add(-time.Duration(g.rng.Float64() * float64(window)))
}

func (g *Generator) pickCategory(state State, systemCategories []string) (category.Category, error) {
	if state == StateIncomplete {
		return g.categories.Unspecified()
	}

	eligible := g.categories.Select(systemCategories...)
	if len(eligible) == 0 {
		return category.Category{}, fmt.Errorf("no eligible categories for system categories %v", systemCategories)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return eligible[g.rng.Intn(len(eligible))], nil
}

func (g *Generator) getSourceAccounts(ctx context.Context) ([]SourceAccount, error) {
	if g.sourceAccounts != nil {
		return g.sourceAccounts, nil
	}

	var out platform.Envelope[[]SourceAccount]
	err := g.client.Do(ctx, "get source accounts", http.MethodGet, "/platform/v1/spender/accounts", g.acct.OwnerAccessToken(), nil, &out)
	if err != nil {
		return nil, err
	}

	g.sourceAccounts = out.Data
	return g.sourceAccounts, nil
}

func (g *Generator) sourceAccountOfType(accountType SourceAccountType) (SourceAccount, error) {
	for _, sa := range g.sourceAccounts {
		if sa.Type == accountType {
			return sa, nil
		}
	}
	return SourceAccount{}, fmt.Errorf("no source account of type %s", accountType)
}

func (g *Generator) createExpense(ctx context.Context, state State, accountType SourceAccountType, systemCategories []string, assigneeEmail string, overrides map[string]any) (Expense, error) {
	cat, err := g.pickCategory(state, systemCategories)
	if err != nil {
		return Expense{}, err
	}

	sourceAccount, err := g.sourceAccountOfType(accountType)
	if err != nil {
		return Expense{}, err
	}

	amount := g.randomAmount()
	payload := map[string]any{
		"spent_at":          g.randomSpentAt().Format(time.RFC3339),
		"source":            "WEBAPP",
		"claim_amount":      amount,
		"purpose":           "Test Expense for E2E",
		"category_id":       cat.ID,
		"source_account_id": sourceAccount.ID,
	}

	role := "spender"
	if assigneeEmail != "" {
		// Admin creates the expense on behalf of the assignee.
		role = "admin"
		payload["assignee_user_email"] = assigneeEmail
		payload["admin_amount"] = amount
	}

	for key, value := range overrides {
		payload[key] = value
	}

	var out platform.Envelope[Expense]
	err = g.client.Do(ctx, "create expense", http.MethodPost, "/platform/v1/"+role+"/expenses", g.acct.OwnerAccessToken(),
		platform.Envelope[map[string]any]{Data: payload}, &out)
	if err != nil {
		return Expense{}, err
	}

	return out.Data, nil
}

// CreateReimbursableExpenses creates count cash expenses in bounded batches.
// Incomplete expenses get the Unspecified category; complete ones a random
// eligible category. With assigneeEmail set, expenses are created through the
// admin endpoint on behalf of that user.
func (g *Generator) CreateReimbursableExpenses(ctx context.Context, count int, state State, systemCategories []string, assigneeEmail string) ([]Expense, error) {
	if _, err := g.getSourceAccounts(ctx); err != nil {
		return nil, err
	}

	expenses := make([]Expense, count)

	for start := 0; start < count; start += batchSize {
		end := min(start+batchSize, count)

		group, groupCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			group.Go(func() error {
				created, err := g.createExpense(groupCtx, state, SourceAccountCash, systemCategories, assigneeEmail, nil)
				if err != nil {
					return err
				}
				expenses[i] = created
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
	}

	g.logger.Info("reimbursable expenses created", "count", count, "state", state)
	return expenses, nil
}

func (g *Generator) createCardTransaction(ctx context.Context, cardID string, state State, systemCategories []string, overrides map[string]any) (CardTransaction, error) {
	cat, err := g.pickCategory(state, systemCategories)
	if err != nil {
		return CardTransaction{}, err
	}

	payload := map[string]any{
		"spent_at":          g.randomSpentAt().Format(time.RFC3339),
		"amount":            g.randomAmount(),
		"category":          cat.Name,
		"corporate_card_id": cardID,
		"currency":          "USD",
	}
	for key, value := range overrides {
		payload[key] = value
	}

	var out platform.Envelope[CardTransaction]
	err = g.client.Do(ctx, "create corporate card transaction", http.MethodPost, "/platform/v1/admin/corporate_card_transactions", g.acct.OwnerAccessToken(),
		platform.Envelope[map[string]any]{Data: payload}, &out)
	if err != nil {
		return CardTransaction{}, err
	}

	return out.Data, nil
}

// waitForMatchedExpenses polls the transaction lookup until the backend has
// auto-matched every transaction to an expense, then returns all matched
// expense IDs.
func (g *Generator) waitForMatchedExpenses(ctx context.Context, transactions []CardTransaction) ([]string, error) {
	ids := make([]string, len(transactions))
	for i, txn := range transactions {
		ids[i] = txn.ID
	}

	params := url.Values{}
	params.Set("id", "in.("+strings.Join(ids, ",")+")")
	lookupPath := "/platform/v1/admin/corporate_card_transactions?" + params.Encode()

	var expenseIDs []string
	err := platform.Poll(ctx, platform.DefaultPollInterval, func(ctx context.Context) error {
		var out platform.Envelope[[]CardTransaction]
		err := g.client.Do(ctx, "get corporate card transactions", http.MethodGet, lookupPath, g.acct.OwnerAccessToken(), nil, &out)
		if err != nil {
			return err
		}

		var matched []string
		for _, txn := range out.Data {
			if len(txn.MatchedExpenseIDs) == 0 {
				g.logger.Info("expenses not auto-created from corporate card transactions yet, retrying")
				return platform.Retryable(errNotMatched)
			}
			matched = append(matched, txn.MatchedExpenseIDs...)
		}
		expenseIDs = matched
		return nil
	})
	if err != nil {
		return nil, err
	}

	return expenseIDs, nil
}

// CreateCCCExpenses creates count corporate card transactions against the
// given card in bounded batches, waits for the backend matching pipeline to
// synthesize an expense per transaction, and returns the matched expense IDs.
func (g *Generator) CreateCCCExpenses(ctx context.Context, count int, state State, cardID string, systemCategories []string, overrides map[string]any) ([]string, error) {
	transactions := make([]CardTransaction, count)

	for start := 0; start < count; start += batchSize {
		end := min(start+batchSize, count)

		group, groupCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			group.Go(func() error {
				txn, err := g.createCardTransaction(groupCtx, cardID, state, systemCategories, overrides)
				if err != nil {
					return err
				}
				transactions[i] = txn
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
	}

	return g.waitForMatchedExpenses(ctx, transactions)
}

// GetReportIDFromExpense looks up the report an expense is attached to.
// Single lookup, no retry.
func (g *Generator) GetReportIDFromExpense(ctx context.Context, role, expenseID string) (string, error) {
	var out platform.Envelope[[]Expense]
	err := g.client.Do(ctx, "get expense", http.MethodGet, "/platform/v1/"+role+"/expenses/?id=eq."+expenseID, g.acct.OwnerAccessToken(), nil, &out)
	if err != nil {
		return "", err
	}
	if len(out.Data) == 0 {
		return "", fmt.Errorf("expense %s not found", expenseID)
	}
	return out.Data[0].ReportID, nil
}
