package orgsettings

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
)

// Settings is the org-wide settings document. It is read-modify-written as a
// whole, so it stays a generic document: top-level keys named in an update
// replace the stored ones, everything else is preserved.
type Settings map[string]any

// Manager reads and merges the per-org settings document.
type Manager struct {
	client *platform.Client
	acct   *account.Account
	logger *slog.Logger
}

func NewManager(client *platform.Client, acct *account.Account, logger *slog.Logger) *Manager {
	return &Manager{client: client, acct: acct, logger: logger}
}

func (m *Manager) Get(ctx context.Context) (Settings, error) {
	var out platform.Envelope[Settings]
	err := m.client.Do(ctx, "get org settings", http.MethodGet, "/api/org/settings", m.acct.OwnerAccessToken(), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Update shallow-merges partial onto the current document and writes the
// result back. Keys present in partial fully replace the corresponding
// top-level key.
func (m *Manager) Update(ctx context.Context, partial Settings) (Settings, error) {
	current, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}

	for key, value := range partial {
		current[key] = value
	}

	var updated Settings
	err = m.client.Do(ctx, "update org settings", http.MethodPost, "/api/org/settings", m.acct.OwnerAccessToken(), current, &updated)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("org settings updated", "org_id", m.acct.OrgID, "updated_keys", len(partial))
	return updated, nil
}
