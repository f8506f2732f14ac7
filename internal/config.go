package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

type Config struct {
	Environment   string           `mapstructure:"environment"`
	API           APIConfig        `mapstructure:"api" validate:"required"`
	SuperAdmin    SuperAdminConfig `mapstructure:"super_admin"`
	Intacct       IntacctConfig    `mapstructure:"intacct"`
	LocalDevEmail string           `mapstructure:"local_dev_email"`
}

type APIConfig struct {
	Domain              string `mapstructure:"domain" validate:"required,url"`
	AppDomain           string `mapstructure:"app_domain"`
	SignupURL           string `mapstructure:"signup_url"`
	InternalSignupToken string `mapstructure:"internal_signup_token"`
}

type SuperAdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type IntacctConfig struct {
	InternalAPIClientID string `mapstructure:"internal_api_client_id"`
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

// StripTrailingSlashes normalizes a configured domain so joined paths never
// contain double slashes.
func StripTrailingSlashes(domain string) string {
	return strings.TrimRight(domain, "/")
}

// LoadConfigFromEnv builds the config from environment variables, matching the
// variable names the CI environment exports.
func LoadConfigFromEnv() *Config {
	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		API: APIConfig{
			Domain:              StripTrailingSlashes(getEnv("API_DOMAIN", "")),
			AppDomain:           StripTrailingSlashes(getEnv("APP_DOMAIN", "")),
			SignupURL:           strings.TrimSpace(getEnv("API_SIGNUP_URL", "")),
			InternalSignupToken: getEnv("INTERNAL_SIGNUP_TOKEN", ""),
		},
		SuperAdmin: SuperAdminConfig{
			Email:    getEnv("SUPER_ADMIN_EMAIL", ""),
			Password: getEnv("SUPER_ADMIN_PASSWORD", ""),
		},
		Intacct: IntacctConfig{
			InternalAPIClientID: getEnv("INTERNAL_API_CLIENT_ID", ""),
		},
		LocalDevEmail: strings.TrimSpace(getEnv("LOCAL_DEV_EMAIL", "")),
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.API.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("api config: %v", err))
	}

	if err := c.SuperAdmin.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("super admin config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *APIConfig) Validate() error {
	if c.Domain == "" {
		return errors.New("api domain is required")
	}
	if _, err := url.Parse(c.Domain); err != nil {
		return fmt.Errorf("invalid api domain %s: %w", c.Domain, err)
	}
	if c.SignupURL != "" {
		if _, err := url.Parse(c.SignupURL); err != nil {
			return fmt.Errorf("invalid signup url %s: %w", c.SignupURL, err)
		}
	}
	return nil
}

func (c *SuperAdminConfig) Validate() error {
	if c.Email == "" || c.Password == "" {
		return errors.New("super admin email and password are required for user verification")
	}
	return nil
}
