package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal"
)

// Client is the shared REST client every service object goes through. It owns
// header construction and error wrapping; callers supply the bearer token on
// each call so a refreshed token is always picked up.
type Client struct {
	apiDomain  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(apiDomain string, logger *slog.Logger) *Client {
	return &Client{
		apiDomain:  internal.StripTrailingSlashes(apiDomain),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

func (c *Client) APIDomain() string {
	return c.apiDomain
}

// RequestHeaders returns the standard JSON headers, with bearer auth when an
// access token is given.
func RequestHeaders(accessToken string) http.Header {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	if accessToken != "" {
		headers.Set("Authorization", "Bearer "+accessToken)
	}

	return headers
}

// Envelope is the `{"data": ...}` wrapper the platform API uses for most
// request and response bodies.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// Do performs one API call. A path starting with "/" is resolved against the
// configured API domain; absolute URLs are used as-is (the signup URL can be
// pinned to a different host). Non-2xx responses become an *internal.APIError
// carrying the response body.
func (c *Client) Do(ctx context.Context, op, method, path, accessToken string, body, out any) error {
	url := path
	if strings.HasPrefix(path, "/") {
		url = c.apiDomain + path
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

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header = RequestHeaders(accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s %s failed: %w", op, method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response body: %w", op, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return internal.NewAPIError(op, method, url, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s: failed to decode response from %s: %w", op, url, err)
		}
	}

	return nil
}
