package account

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
)

// Service provisions and tears down test accounts against the product API.
type Service struct {
	client     *platform.Client
	cfg        *internal.Config
	superAdmin *SuperAdminSession
	logger     *slog.Logger
}

func NewService(client *platform.Client, cfg *internal.Config, logger *slog.Logger) *Service {
	return &Service{
		client:     client,
		cfg:        cfg,
		superAdmin: NewSuperAdminSession(client, cfg.SuperAdmin, logger),
		logger:     logger,
	}
}

func (s *Service) newAccount(ownerEmail string, source Source) *Account {
	return &Account{
		APIDomain:  s.client.APIDomain(),
		AppDomain:  s.cfg.API.AppDomain,
		OwnerEmail: ownerEmail,
		Password:   Password,
		OrgName:    OrgName,
		Source:     source,
	}
}

// Create provisions a fresh account with an org in the given currency, or
// reuses the pinned local-dev account when one is configured. The returned
// account has a valid owner access token and a fully initialized org.
func (s *Service) Create(ctx context.Context, orgCurrency string) (*Account, error) {
	if pinned := strings.TrimSpace(s.cfg.LocalDevEmail); pinned != "" {
		return s.reuse(ctx, pinned)
	}

	acct := s.newAccount(GenerateEmail("owner"), SourceProvisioned)

	if err := s.signUp(ctx, acct, orgCurrency); err != nil {
		return nil, err
	}
	s.logger.Info("account created", "owner_email", acct.OwnerEmail)

	refreshToken, err := s.verifyUser(ctx, acct.OwnerEmail)
	if err != nil {
		return nil, err
	}
	acct.setOwnerRefreshToken(refreshToken)

	accessToken, err := s.accessToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	acct.setOwnerAccessToken(accessToken)

	if err := s.markUserActive(ctx, accessToken); err != nil {
		return nil, err
	}

	if err := s.waitForOnboarding(ctx, acct); err != nil {
		return nil, err
	}

	if err := s.renameOrg(ctx, acct); err != nil {
		return nil, err
	}

	return acct, nil
}

// reuse verifies the pinned account and derives a fresh owner token, skipping
// signup entirely.
func (s *Service) reuse(ctx context.Context, ownerEmail string) (*Account, error) {
	acct := s.newAccount(ownerEmail, SourceReused)

	refreshToken, err := s.verifyUser(ctx, acct.OwnerEmail)
	if err != nil {
		return nil, err
	}
	acct.setOwnerRefreshToken(refreshToken)

	accessToken, err := s.accessToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	acct.setOwnerAccessToken(accessToken)

	s.logger.Info("pinned local dev account detected, skipping account creation", "owner_email", ownerEmail)
	return acct, nil
}

func (s *Service) signupURLs() []string {
	if s.cfg.API.SignupURL != "" {
		return []string{s.cfg.API.SignupURL}
	}
	return []string{
		s.client.APIDomain() + "/api/auth/basic/signup",
		s.client.APIDomain() + "/platform/v1/auth/signup",
	}
}

// signUp registers the owner. 5xx responses are treated as transient backend
// overload and retried after a fixed delay; a 404 from every candidate URL is
// a misconfigured environment and fails immediately with a descriptive error.
func (s *Service) signUp(ctx context.Context, acct *Account, orgCurrency string) error {
	payload := signupRequest{
		Email:               acct.OwnerEmail,
		Password:            acct.Password,
		FullName:            "Owner",
		Title:               "Owner",
		InternalSignupToken: s.cfg.API.InternalSignupToken,
		SignupParams:        signupParams{OrgCurrency: orgCurrency},
	}
	urls := s.signupURLs()

	return platform.Poll(ctx, platform.DefaultPollInterval, func(ctx context.Context) error {
		err := s.attemptSignup(ctx, urls, payload)
		if internal.IsServerError(err) {
			s.logger.Warn("signup failed with server error, retrying", "error", err)
			return platform.Retryable(err)
		}
		return err
	})
}

func (s *Service) attemptSignup(ctx context.Context, urls []string, payload signupRequest) error {
	var lastErr error

	for i, signupURL := range urls {
		s.logger.Debug("attempting signup", "signup_url", signupURL)

		err := s.client.Do(ctx, "signup", http.MethodPost, signupURL, "", payload, nil)
		if err == nil {
			return nil
		}
		lastErr = err

		if internal.IsNotFound(err) && i < len(urls)-1 {
			s.logger.Info("signup endpoint not found, trying next URL", "signup_url", signupURL)
			continue
		}
		break
	}

	if internal.IsNotFound(lastErr) {
		return fmt.Errorf(
			"failed to create account: 404 Not Found (tried: %s): %w; "+
				"ensure the API domain is correct, signup is enabled for this environment, "+
				"and the internal signup token is set",
			strings.Join(urls, ", "), lastErr)
	}
	if lastErr != nil && !internal.IsServerError(lastErr) {
		return fmt.Errorf("failed to create account: %w; check the internal signup token "+
			"and that signup is allowed for this environment", lastErr)
	}
	return lastErr
}

// verifyUser performs the out-of-band administrative email verification and
// returns the user's refresh token. A 401 means the cached super-admin token
// expired: re-authenticate once and retry the call.
func (s *Service) verifyUser(ctx context.Context, email string) (string, error) {
	adminToken, err := s.superAdmin.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	var out tokenResponse
	err = s.client.Do(ctx, "verify user", http.MethodPost, "/api/auth/test/email_verify", adminToken, emailRequest{Email: email}, &out)
	if internal.IsUnauthorized(err) {
		adminToken, err = s.superAdmin.Refresh(ctx)
		if err != nil {
			return "", err
		}
		err = s.client.Do(ctx, "verify user", http.MethodPost, "/api/auth/test/email_verify", adminToken, emailRequest{Email: email}, &out)
	}
	if err != nil {
		return "", fmt.Errorf("user verification failed: %w", err)
	}

	return out.RefreshToken, nil
}

func (s *Service) signIn(ctx context.Context, email, password string) (string, error) {
	var out tokenResponse
	err := s.client.Do(ctx, "sign in", http.MethodPost, "/api/auth/basic/signin", "", credentials{
		Email:    email,
		Password: password,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.RefreshToken, nil
}

func (s *Service) accessToken(ctx context.Context, refreshToken string) (string, error) {
	var out tokenResponse
	err := s.client.Do(ctx, "get access token", http.MethodPost, "/api/auth/access_token", "", refreshTokenRequest{
		RefreshToken: refreshToken,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	return out.AccessToken, nil
}

func (s *Service) markUserActive(ctx context.Context, accessToken string) error {
	return s.client.Do(ctx, "mark user active", http.MethodPost, "/api/orgusers/current/mark_active", accessToken, nil, nil)
}

// waitForOnboarding polls the onboarding endpoint until the backend has
// initialized onboarding data for the new user. A 404 means not ready yet.
func (s *Service) waitForOnboarding(ctx context.Context, acct *Account) error {
	return platform.Poll(ctx, platform.DefaultPollInterval, func(ctx context.Context) error {
		err := s.client.Do(ctx, "onboarding", http.MethodGet, "/platform/v1/spender/onboarding", acct.OwnerAccessToken(), nil, nil)
		if internal.IsNotFound(err) {
			s.logger.Info("onboarding data not initialised for user yet, retrying", "owner_email", acct.OwnerEmail)
			return platform.Retryable(err)
		}
		return err
	})
}

// VerifyAndActivateUser activates a secondary (non-owner) user created during
// multi-user scenarios.
func (s *Service) VerifyAndActivateUser(ctx context.Context, userEmail string) error {
	refreshToken, err := s.verifyUser(ctx, userEmail)
	if err != nil {
		return err
	}
	userAccessToken, err := s.accessToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	return s.markUserActive(ctx, userAccessToken)
}

// ForEmail rebuilds an Account handle for a previously provisioned owner
// email, for teardown from a separate process.
func (s *Service) ForEmail(ownerEmail string) *Account {
	return s.newAccount(ownerEmail, SourceProvisioned)
}

// Delete removes every org owned by the account. Each org has its own refresh
// token, so a fresh access token is derived per org before the owner delete
// call. Reused (pinned) accounts are never deleted.
func (s *Service) Delete(ctx context.Context, acct *Account, refreshTokenExpired bool) error {
	if acct.Source == SourceReused {
		s.logger.Info("pinned local dev account, skipping account deletion", "owner_email", acct.OwnerEmail)
		return nil
	}

	ownerAccessToken := acct.OwnerAccessToken()
	if refreshTokenExpired || ownerAccessToken == "" {
		refreshToken, err := s.signIn(ctx, acct.OwnerEmail, acct.Password)
		if err != nil {
			return err
		}
		ownerAccessToken, err = s.accessToken(ctx, refreshToken)
		if err != nil {
			return err
		}
		acct.setOwnerAccessToken(ownerAccessToken)
	}

	var orgs []Org
	if err := s.client.Do(ctx, "list orgs", http.MethodGet, "/api/orgs", ownerAccessToken, nil, &orgs); err != nil {
		return err
	}

	for _, org := range orgs {
		var orgToken tokenResponse
		err := s.client.Do(ctx, "org refresh token", http.MethodPost, "/api/orgs/"+org.ID+"/refresh_token", ownerAccessToken, nil, &orgToken)
		if err != nil {
			return err
		}

		orgAccessToken, err := s.accessToken(ctx, orgToken.RefreshToken)
		if err != nil {
			return err
		}

		err = s.client.Do(ctx, "delete org", http.MethodPost, "/platform/v1/owner/orgs/delete", orgAccessToken,
			platform.Envelope[idRef]{Data: idRef{ID: org.ID}}, nil)
		if err != nil {
			return fmt.Errorf("failed to delete account with org %s: %w", org.ID, err)
		}
	}

	s.logger.Info("deleted account", "owner_email", acct.OwnerEmail, "org_count", len(orgs))
	return nil
}

// renameOrg sets the org display name via a read-merge-write on the org
// document, and records the org ID on the account.
func (s *Service) renameOrg(ctx context.Context, acct *Account) error {
	var listed platform.Envelope[[]map[string]any]
	err := s.client.Do(ctx, "list spender orgs", http.MethodGet, "/platform/v1/spender/orgs", acct.OwnerAccessToken(), nil, &listed)
	if err != nil {
		return err
	}
	if len(listed.Data) == 0 {
		return fmt.Errorf("rename org: no orgs returned for account %s", acct.OwnerEmail)
	}

	current := listed.Data[0]
	current["name"] = acct.OrgName

	var updated map[string]any
	err = s.client.Do(ctx, "update org", http.MethodPost, "/api/orgs/", acct.OwnerAccessToken(), current, &updated)
	if err != nil {
		return err
	}

	if id, ok := updated["id"].(string); ok {
		acct.OrgID = id
	} else if id, ok := current["id"].(string); ok {
		acct.OrgID = id
	}

	return nil
}
