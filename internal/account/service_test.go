package account_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
)

func TestAccount(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Account Suite")
}

// fakeBackend is a hand-rolled double of the auth and org endpoints the
// account service drives, with per-endpoint call counters and failure
// injection.
type fakeBackend struct {
	mu sync.Mutex

	signupStatuses  []int // statuses returned for successive signup calls; empty means 200
	verifyStatuses  []int
	onboarding404s  int
	signupCalls     int
	signinCalls     int
	verifyCalls     int
	markActiveCalls int
	onboardingCalls int
	deletedOrgIDs   []string
	renamedOrgName  string
}

func (f *fakeBackend) popStatus(queue *[]int) int {
	if len(*queue) == 0 {
		return http.StatusOK
	}
	status := (*queue)[0]
	*queue = (*queue)[1:]
	return status
}

func (f *fakeBackend) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/basic/signup", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.signupCalls++
		status := f.popStatus(&f.signupStatuses)
		f.mu.Unlock()
		if status != http.StatusOK {
			writeJSON(w, status, map[string]string{"message": "signup failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	mux.HandleFunc("POST /api/auth/basic/signin", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.signinCalls++
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"refresh_token": "rt-signin"})
	})

	mux.HandleFunc("POST /api/auth/access_token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "at-token"})
	})

	mux.HandleFunc("POST /api/auth/test/email_verify", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.verifyCalls++
		status := f.popStatus(&f.verifyStatuses)
		f.mu.Unlock()
		if status != http.StatusOK {
			writeJSON(w, status, map[string]string{"message": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"refresh_token": "rt-owner"})
	})

	mux.HandleFunc("POST /api/orgusers/current/mark_active", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.markActiveCalls++
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	mux.HandleFunc("GET /platform/v1/spender/onboarding", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.onboardingCalls++
		notReady := f.onboardingCalls <= f.onboarding404s
		f.mu.Unlock()
		if notReady {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"state": "ACTIVE"}})
	})

	mux.HandleFunc("GET /platform/v1/spender/orgs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{"id": "orgtest1", "name": "placeholder", "currency": "USD"}},
		})
	})

	mux.HandleFunc("POST /api/orgs/", func(w http.ResponseWriter, r *http.Request) {
		var doc map[string]any
		_ = json.NewDecoder(r.Body).Decode(&doc)
		f.mu.Lock()
		f.renamedOrgName, _ = doc["name"].(string)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("GET /api/orgs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"id": "orgtest1", "name": "Integrations E2E Tests"}})
	})

	mux.HandleFunc("POST /api/orgs/orgtest1/refresh_token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"refresh_token": "rt-org"})
	})

	mux.HandleFunc("POST /platform/v1/owner/orgs/delete", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		f.deletedOrgIDs = append(f.deletedOrgIDs, payload.Data.ID)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	// Unrouted paths 404, which matches how the real backend answers unknown
	// endpoints.
	return mux
}

var _ = Describe("AccountService", func() {
	var (
		backend *fakeBackend
		server  *httptest.Server
		cfg     *internal.Config
		service *account.Service
		logger  *slog.Logger
		ctx     context.Context
	)

	newService := func() *account.Service {
		client := platform.NewClient(server.URL, logger)
		return account.NewService(client, cfg, logger)
	}

	BeforeEach(func() {
		backend = &fakeBackend{}
		server = httptest.NewServer(backend.handler())
		DeferCleanup(server.Close)

		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		cfg = &internal.Config{
			Environment: "test",
			API: internal.APIConfig{
				Domain:              server.URL,
				InternalSignupToken: "signup-token",
			},
			SuperAdmin: internal.SuperAdminConfig{
				Email:    "super.admin@fyle.in",
				Password: "Password@1234",
			},
		}
		service = newService()

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		DeferCleanup(cancel)
	})

	Describe("Create", func() {
		It("should provision, verify, activate and rename in one pass", func() {
			acct, err := service.Create(ctx, "USD")

			Expect(err).ToNot(HaveOccurred())
			Expect(acct.OwnerEmail).To(HaveSuffix("@" + account.AccountDomain))
			Expect(acct.Password).To(Equal(account.Password))
			Expect(acct.OrgID).To(Equal("orgtest1"))
			Expect(acct.Source).To(Equal(account.SourceProvisioned))
			Expect(acct.OwnerAccessToken()).To(Equal("at-token"))

			Expect(backend.signupCalls).To(Equal(1))
			Expect(backend.verifyCalls).To(Equal(1))
			Expect(backend.markActiveCalls).To(Equal(1))
			Expect(backend.renamedOrgName).To(Equal(account.OrgName))
		})

		It("should wait for onboarding data, treating 404 as not-ready", func() {
			backend.onboarding404s = 1

			_, err := service.Create(ctx, "USD")

			Expect(err).ToNot(HaveOccurred())
			Expect(backend.onboardingCalls).To(Equal(2))
		})

		It("should retry signup on server errors", func() {
			backend.signupStatuses = []int{http.StatusServiceUnavailable}

			_, err := service.Create(ctx, "USD")

			Expect(err).ToNot(HaveOccurred())
			Expect(backend.signupCalls).To(Equal(2))
		})

		It("should fail fast with a descriptive error when every signup URL 404s", func() {
			cfg.API.SignupURL = server.URL + "/nonexistent/signup"
			service = newService()

			_, err := service.Create(ctx, "USD")

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("404"))
			Expect(err.Error()).To(ContainSubstring("ensure the API domain is correct"))
			Expect(backend.signupCalls).To(BeZero())
		})

		It("should re-authenticate the super admin once on 401 and retry verification", func() {
			backend.verifyStatuses = []int{http.StatusUnauthorized}

			_, err := service.Create(ctx, "USD")

			Expect(err).ToNot(HaveOccurred())
			Expect(backend.verifyCalls).To(Equal(2))
			// one signin for the initial token, one for the refresh
			Expect(backend.signinCalls).To(Equal(2))
		})

		It("should reuse the pinned local dev account without signing up", func() {
			cfg.LocalDevEmail = "dev@fyle.in"
			service = newService()

			acct, err := service.Create(ctx, "USD")

			Expect(err).ToNot(HaveOccurred())
			Expect(acct.OwnerEmail).To(Equal("dev@fyle.in"))
			Expect(acct.Source).To(Equal(account.SourceReused))
			Expect(backend.signupCalls).To(BeZero())
			Expect(backend.markActiveCalls).To(BeZero())
		})
	})

	Describe("Delete", func() {
		It("should delete every org with an org-scoped token", func() {
			acct, err := service.Create(ctx, "USD")
			Expect(err).ToNot(HaveOccurred())

			err = service.Delete(ctx, acct, false)

			Expect(err).ToNot(HaveOccurred())
			Expect(backend.deletedOrgIDs).To(Equal([]string{"orgtest1"}))
		})

		It("should re-derive owner credentials when the token has expired", func() {
			acct := service.ForEmail("owner-123@" + account.AccountDomain)

			err := service.Delete(ctx, acct, true)

			Expect(err).ToNot(HaveOccurred())
			Expect(backend.signinCalls).To(Equal(1))
			Expect(backend.deletedOrgIDs).To(Equal([]string{"orgtest1"}))
		})

		It("should never delete a reused account", func() {
			cfg.LocalDevEmail = "dev@fyle.in"
			service = newService()
			acct, err := service.Create(ctx, "USD")
			Expect(err).ToNot(HaveOccurred())

			err = service.Delete(ctx, acct, false)

			Expect(err).ToNot(HaveOccurred())
			Expect(backend.deletedOrgIDs).To(BeEmpty())
		})
	})
})
