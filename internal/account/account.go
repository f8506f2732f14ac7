package account

import (
	"fmt"
	"sync"
	"time"
)

const (
	// Password for every generated test account. Signup is gated by the
	// internal signup token, so a fixed password keeps teardown-by-email
	// possible.
	Password = "Password@1234"

	// AccountDomain marks generated owner emails so stray accounts are easy
	// to find and purge.
	AccountDomain = "fyleforintegrationse2etests.com"

	// OrgName is the display name set on every provisioned org.
	OrgName = "Integrations E2E Tests"
)

// Source says how an Account came to exist. Reused accounts are a local-dev
// convenience: a pinned email skips signup on create and deletion on
// teardown. Not safe for parallel runs.
type Source int

const (
	SourceProvisioned Source = iota
	SourceReused
)

func (s Source) String() string {
	if s == SourceReused {
		return "reused"
	}
	return "provisioned"
}

// Account is one tenant plus its owning user. All collaborating services hold
// a reference to the same Account and read the latest owner token through
// OwnerAccessToken instead of caching their own copy.
type Account struct {
	APIDomain  string
	AppDomain  string
	OwnerEmail string
	Password   string
	OrgName    string
	OrgID      string
	Source     Source

	mu                sync.Mutex
	ownerRefreshToken string
	ownerAccessToken  string
}

// GenerateEmail returns a unique owner email for the given role.
func GenerateEmail(role string) string {
	return fmt.Sprintf("%s-%d@%s", role, time.Now().UnixNano(), AccountDomain)
}

func (a *Account) OwnerAccessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ownerAccessToken
}

func (a *Account) setOwnerAccessToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ownerAccessToken = token
}

func (a *Account) setOwnerRefreshToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ownerRefreshToken = token
}
