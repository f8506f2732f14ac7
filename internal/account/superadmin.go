package account

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
)

// SuperAdminSession caches the super-admin access token used for out-of-band
// administrative calls (test email verification). The token is fetched lazily
// and re-derived once when the backend signals expiry.
type SuperAdminSession struct {
	client   *platform.Client
	email    string
	password string
	logger   *slog.Logger

	mu          sync.Mutex
	accessToken string
}

func NewSuperAdminSession(client *platform.Client, cfg internal.SuperAdminConfig, logger *slog.Logger) *SuperAdminSession {
	return &SuperAdminSession{
		client:   client,
		email:    cfg.Email,
		password: cfg.Password,
		logger:   logger,
	}
}

// AccessToken returns the cached token, signing in first if there is none.
func (s *SuperAdminSession) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" {
		return s.accessToken, nil
	}
	return s.fetchLocked(ctx)
}

// Refresh discards the cached token and signs in again. Called once when a
// super-admin call comes back 401.
func (s *SuperAdminSession) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("super admin access token expired, signing in again")
	s.accessToken = ""
	return s.fetchLocked(ctx)
}

func (s *SuperAdminSession) fetchLocked(ctx context.Context) (string, error) {
	var signIn tokenResponse
	err := s.client.Do(ctx, "super admin sign in", http.MethodPost, "/api/auth/basic/signin", "", credentials{
		Email:    s.email,
		Password: s.password,
	}, &signIn)
	if err != nil {
		return "", fmt.Errorf("failed to login to super admin account: %w", err)
	}

	var exchange tokenResponse
	err = s.client.Do(ctx, "super admin access token", http.MethodPost, "/api/auth/access_token", "", refreshTokenRequest{
		RefreshToken: signIn.RefreshToken,
	}, &exchange)
	if err != nil {
		return "", fmt.Errorf("failed to get super admin access token: %w", err)
	}

	s.accessToken = exchange.AccessToken
	return s.accessToken, nil
}
