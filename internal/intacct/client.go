package intacct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal"
)

// Record is one exported record in the downstream accounting system. The
// document shape varies per resource type, so it stays generic; assertions
// pick the fields they care about.
type Record map[string]any

// Client queries the Intacct connector's internal API to verify exported
// records and to provision isolated integration-test workspaces.
// Authentication is a client-ID header, not a bearer token, so it does not
// share the platform client.
type Client struct {
	apiDomain  string
	clientID   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(apiDomain, internalAPIClientID string, logger *slog.Logger) *Client {
	return &Client{
		apiDomain:  internal.StripTrailingSlashes(apiDomain),
		clientID:   internalAPIClientID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	requestURL := c.apiDomain + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request body: %w", op, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	ctx, cancel := internal.WithTimeout(ctx, 0)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-API-Client-ID", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s %s failed: %w", op, method, requestURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response body: %w", op, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("intacct internal API call failed",
			"op", op,
			"status_code", resp.StatusCode,
			"body", string(respBody))
		return internal.NewAPIError(op, method, requestURL, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s: failed to decode response: %w", op, err)
		}
	}
	return nil
}

// GetRecordByInternalID fetches the exported charge card transaction for the
// given org and internal reference ID, to assert export correctness.
func (c *Client) GetRecordByInternalID(ctx context.Context, orgID, internalID string) (Record, error) {
	query := url.Values{}
	query.Set("org_id", orgID)
	query.Set("resource_type", "charge_card_transaction")
	query.Set("internal_id", internalID)

	var out struct {
		Data struct {
			CCTransaction Record `json:"cctransaction"`
		} `json:"data"`
	}
	err := c.do(ctx, "get exported entry", http.MethodGet, "/intacct-api/internal_api/exported_entry/", query, nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Data.CCTransaction, nil
}

// SetupTestWorkspace provisions an isolated integration-test org in the
// connector for the given workspace, so tests do not pollute a shared
// sandbox.
func (c *Client) SetupTestWorkspace(ctx context.Context, workspaceID int) error {
	return c.do(ctx, "setup test workspace", http.MethodPost, "/intacct-api/internal_api/integration_test_orgs/", nil,
		map[string]any{"workspace_id": workspaceID}, nil)
}

// DestroyTestWorkspace tears the integration-test org back down.
func (c *Client) DestroyTestWorkspace(ctx context.Context, workspaceID int) error {
	query := url.Values{}
	query.Set("workspace_id", strconv.Itoa(workspaceID))
	return c.do(ctx, "destroy test workspace", http.MethodDelete, "/intacct-api/internal_api/integration_test_orgs/", query, nil, nil)
}
