package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
)

var errNotInitialized = errors.New("categories not initialised in the org yet")

// Manager guarantees a deterministic set of expense categories exists for an
// account and hands out category picks for generated test data. The fetched
// set is cached on the manager for the lifetime of one data-generation pass.
type Manager struct {
	client *platform.Client
	acct   *account.Account
	logger *slog.Logger

	categories []Category
}

func NewManager(client *platform.Client, acct *account.Account, logger *slog.Logger) *Manager {
	return &Manager{client: client, acct: acct, logger: logger}
}

// EnsureCategories fetches the enabled categories for the account, polling
// until backend-side category initialization has produced a non-empty set.
func (m *Manager) EnsureCategories(ctx context.Context) ([]Category, error) {
	if m.categories != nil {
		return m.categories, nil
	}

	var categories []Category
	err := platform.Poll(ctx, platform.DefaultPollInterval, func(ctx context.Context) error {
		fetched, err := m.fetchSpenderCategories(ctx)
		if err != nil {
			return err
		}
		if len(fetched) == 0 {
			m.logger.Info("categories not initialised in the org yet, retrying", "org_id", m.acct.OrgID)
			return platform.Retryable(errNotInitialized)
		}
		categories = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.categories = categories
	return m.categories, nil
}

func (m *Manager) fetchSpenderCategories(ctx context.Context) ([]Category, error) {
	params := url.Values{}
	params.Set("is_enabled", "eq.true")
	params.Set("system_category", "not_in.("+SystemActivity+")")

	var out platform.Envelope[[]Category]
	err := m.client.Do(ctx, "get categories", http.MethodGet, "/platform/v1/spender/categories?"+params.Encode(), m.acct.OwnerAccessToken(), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (m *Manager) fetchAdminCategories(ctx context.Context) ([]Category, error) {
	var out platform.Envelope[[]Category]
	err := m.client.Do(ctx, "get admin categories", http.MethodGet, "/platform/v1/admin/categories", m.acct.OwnerAccessToken(), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateOrUpdateCategories upserts the deterministic category set through the
// admin bulk endpoint: the Unspecified category is forced enabled and a known
// custom category is added. Returns the refreshed admin category list, which
// becomes the cached set.
func (m *Manager) CreateOrUpdateCategories(ctx context.Context) ([]Category, error) {
	adminCategories, err := m.fetchAdminCategories(ctx)
	if err != nil {
		return nil, err
	}

	upserts := []Category{
		{
			Name:           "Test Category",
			SubCategory:    "Turbo charged",
			IsEnabled:      true,
			SystemCategory: SystemOthers,
			Code:           "C1234",
		},
		{
			Name:           "Trainss",
			IsEnabled:      true,
			SystemCategory: SystemTrain,
		},
	}

	for _, cat := range adminCategories {
		if cat.Name == SystemUnspecified {
			cat.IsEnabled = true
			upserts = append([]Category{cat}, upserts...)
			break
		}
	}

	err = m.client.Do(ctx, "bulk upsert categories", http.MethodPost, "/platform/v1/admin/categories/bulk", m.acct.OwnerAccessToken(),
		platform.Envelope[[]Category]{Data: upserts}, nil)
	if err != nil {
		return nil, err
	}

	updated, err := m.fetchAdminCategories(ctx)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("categories upserted", "count", len(updated))
	m.categories = updated
	return updated, nil
}

// Select returns the cached categories tagged with one of the given system
// categories. Without a filter it returns the "normal" spend categories:
// everything except Mileage, Per Diem and Unspecified.
func (m *Manager) Select(systemCategories ...string) []Category {
	var selected []Category

	if len(systemCategories) > 0 {
		for _, cat := range m.categories {
			if slices.Contains(systemCategories, cat.SystemCategory) {
				selected = append(selected, cat)
			}
		}
		return selected
	}

	excluded := []string{SystemMileage, SystemPerDiem, SystemUnspecified}
	for _, cat := range m.categories {
		if !slices.Contains(excluded, cat.SystemCategory) {
			selected = append(selected, cat)
		}
	}
	return selected
}

// Unspecified returns the single category tagged Unspecified, used to create
// intentionally-incomplete expenses.
func (m *Manager) Unspecified() (Category, error) {
	for _, cat := range m.categories {
		if cat.SystemCategory == SystemUnspecified {
			return cat, nil
		}
	}
	return Category{}, fmt.Errorf("no category with system category %q for org %s", SystemUnspecified, m.acct.OrgID)
}
