package intacct_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/intacct"
)

func TestIntacct(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Intacct Suite")
}

var _ = Describe("Client", func() {
	var (
		lastRequest *http.Request
		statusCode  int
		server      *httptest.Server
		client      *intacct.Client
	)

	BeforeEach(func() {
		lastRequest = nil
		statusCode = http.StatusOK
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastRequest = r.Clone(context.Background())
			if statusCode != http.StatusOK {
				w.WriteHeader(statusCode)
				_, _ = w.Write([]byte(`{"message": "nope"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"cctransaction": map[string]any{
						"RECORDNO":    "12345",
						"TOTALAMOUNT": 42.5,
					},
				},
			})
		}))
		DeferCleanup(server.Close)

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		client = intacct.NewClient(server.URL, "client-id-123", logger)
	})

	Describe("GetRecordByInternalID", func() {
		It("should authenticate with the internal client ID header and pass lookup params", func() {
			record, err := client.GetRecordByInternalID(context.Background(), "orgtest1", "txabc")

			Expect(err).ToNot(HaveOccurred())
			Expect(lastRequest.Header.Get("X-Internal-API-Client-ID")).To(Equal("client-id-123"))

			query := lastRequest.URL.Query()
			Expect(query.Get("org_id")).To(Equal("orgtest1"))
			Expect(query.Get("internal_id")).To(Equal("txabc"))
			Expect(query.Get("resource_type")).To(Equal("charge_card_transaction"))

			Expect(record["RECORDNO"]).To(Equal("12345"))
		})

		It("should fail without retrying on a non-2xx response", func() {
			statusCode = http.StatusUnauthorized

			_, err := client.GetRecordByInternalID(context.Background(), "orgtest1", "txabc")

			Expect(err).To(HaveOccurred())
			Expect(internal.IsUnauthorized(err)).To(BeTrue())
		})
	})

	Describe("workspace provisioning", func() {
		It("should POST the workspace ID on setup", func() {
			err := client.SetupTestWorkspace(context.Background(), 42)

			Expect(err).ToNot(HaveOccurred())
			Expect(lastRequest.Method).To(Equal(http.MethodPost))
			Expect(lastRequest.URL.Path).To(Equal("/intacct-api/internal_api/integration_test_orgs/"))
		})

		It("should DELETE with the workspace ID as a query param on destroy", func() {
			err := client.DestroyTestWorkspace(context.Background(), 42)

			Expect(err).ToNot(HaveOccurred())
			Expect(lastRequest.Method).To(Equal(http.MethodDelete))
			Expect(lastRequest.URL.Query().Get("workspace_id")).To(Equal("42"))
		})
	})
})
