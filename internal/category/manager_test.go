package category_test

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

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/category"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
)

func TestCategory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Category Suite")
}

var _ = Describe("Manager", func() {
	var (
		mu             sync.Mutex
		spenderFetches int
		emptyFetches   int
		upserted       []category.Category
		adminSet       []category.Category
		server         *httptest.Server
		manager        *category.Manager
		ctx            context.Context
	)

	BeforeEach(func() {
		spenderFetches = 0
		emptyFetches = 0
		upserted = nil
		adminSet = []category.Category{
			{ID: "cat1", Name: "Food", SystemCategory: category.SystemOthers, IsEnabled: true},
			{ID: "cat2", Name: "Mileage", SystemCategory: category.SystemMileage, IsEnabled: true},
			{ID: "cat3", Name: "Per Diem", SystemCategory: category.SystemPerDiem, IsEnabled: true},
			{ID: "cat4", Name: "Unspecified", SystemCategory: category.SystemUnspecified, IsEnabled: false},
		}

		mux := http.NewServeMux()
		mux.HandleFunc("GET /platform/v1/spender/categories", func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			spenderFetches++
			empty := spenderFetches <= emptyFetches
			mu.Unlock()

			data := []category.Category{}
			if !empty {
				for _, cat := range adminSet {
					if cat.IsEnabled && cat.SystemCategory != category.SystemActivity {
						data = append(data, cat)
					}
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
		})
		mux.HandleFunc("GET /platform/v1/admin/categories", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"data": adminSet})
		})
		mux.HandleFunc("POST /platform/v1/admin/categories/bulk", func(w http.ResponseWriter, r *http.Request) {
			var payload struct {
				Data []category.Category `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			mu.Lock()
			upserted = payload.Data
			mu.Unlock()

			// apply the upsert so the refreshed admin list reflects it
			for _, in := range payload.Data {
				found := false
				for i, existing := range adminSet {
					if existing.Name == in.Name {
						adminSet[i] = in
						found = true
						break
					}
				}
				if !found {
					adminSet = append(adminSet, in)
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]int{"updated": len(payload.Data)}})
		})
		server = httptest.NewServer(mux)
		DeferCleanup(server.Close)

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		client := platform.NewClient(server.URL, logger)
		manager = category.NewManager(client, &account.Account{OrgID: "orgtest1"}, logger)

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		DeferCleanup(cancel)
	})

	Describe("EnsureCategories", func() {
		It("should poll until category initialization yields a non-empty set", func() {
			emptyFetches = 1

			categories, err := manager.EnsureCategories(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(categories).ToNot(BeEmpty())
			Expect(spenderFetches).To(Equal(2))
		})

		It("should cache the fetched set", func() {
			_, err := manager.EnsureCategories(ctx)
			Expect(err).ToNot(HaveOccurred())

			_, err = manager.EnsureCategories(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(spenderFetches).To(Equal(1))
		})
	})

	Describe("CreateOrUpdateCategories", func() {
		It("should force the Unspecified category enabled, first in the upsert", func() {
			_, err := manager.CreateOrUpdateCategories(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(upserted).ToNot(BeEmpty())
			Expect(upserted[0].Name).To(Equal("Unspecified"))
			Expect(upserted[0].IsEnabled).To(BeTrue())
		})

		It("should upsert the known custom categories", func() {
			_, err := manager.CreateOrUpdateCategories(ctx)
			Expect(err).ToNot(HaveOccurred())

			names := make([]string, len(upserted))
			for i, cat := range upserted {
				names[i] = cat.Name
			}
			Expect(names).To(ContainElements("Test Category", "Trainss"))
		})

		It("should cache the refreshed admin list", func() {
			updated, err := manager.CreateOrUpdateCategories(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(updated).To(HaveLen(6)) // 4 seeded + 2 custom

			unspecified, err := manager.Unspecified()
			Expect(err).ToNot(HaveOccurred())
			Expect(unspecified.IsEnabled).To(BeTrue())
		})
	})

	Describe("Select", func() {
		BeforeEach(func() {
			_, err := manager.CreateOrUpdateCategories(ctx)
			Expect(err).ToNot(HaveOccurred())
		})

		It("should exclude Mileage, Per Diem and Unspecified by default", func() {
			selected := manager.Select()

			Expect(selected).ToNot(BeEmpty())
			for _, cat := range selected {
				Expect(cat.SystemCategory).ToNot(BeElementOf(
					category.SystemMileage, category.SystemPerDiem, category.SystemUnspecified))
			}
		})

		It("should filter on the given system categories", func() {
			selected := manager.Select(category.SystemTrain)

			Expect(selected).To(HaveLen(1))
			Expect(selected[0].Name).To(Equal("Trainss"))
		})
	})
})
