package card_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/card"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
)

func TestCard(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Card Suite")
}

var _ = Describe("Service", func() {
	var (
		enrollments int
		enrolled    []card.Card
		settings    map[string]any
		server      *httptest.Server
		service     *card.Service
		client      *platform.Client
		acct        *account.Account
		logger      *slog.Logger
	)

	maskCard := func(number string) string {
		return number[:4] + strings.Repeat("*", len(number)-8) + number[len(number)-4:]
	}

	BeforeEach(func() {
		enrollments = 0
		enrolled = nil
		settings = map[string]any{"org_id": "orgtest1"}

		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/org/settings", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"data": settings})
		})
		mux.HandleFunc("POST /api/org/settings", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&settings)
			_ = json.NewEncoder(w).Encode(settings)
		})
		mux.HandleFunc("GET /platform/v1/spender/corporate_cards", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"data": enrolled})
		})
		mux.HandleFunc("POST /platform/v1/spender/corporate_cards/visa_enroll", func(w http.ResponseWriter, r *http.Request) {
			var payload struct {
				Data struct {
					CardNumber string `json:"card_number"`
				} `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			enrollments++
			newCard := card.Card{ID: "bacc1", CardNumber: maskCard(payload.Data.CardNumber)}
			enrolled = append(enrolled, newCard)
			_ = json.NewEncoder(w).Encode(map[string]any{"data": newCard})
		})
		server = httptest.NewServer(mux)
		DeferCleanup(server.Close)

		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		client = platform.NewClient(server.URL, logger)
		acct = &account.Account{OrgID: "orgtest1"}
		service = card.NewService(client, acct, logger)
	})

	Describe("Init", func() {
		It("should enable corporate card and enrollment settings on the org", func() {
			_, err := card.Init(context.Background(), client, acct, logger)

			Expect(err).ToNot(HaveOccurred())
			Expect(settings).To(HaveKey("corporate_credit_card_settings"))
			Expect(settings).To(HaveKey("visa_enrollment_settings"))
			Expect(settings).To(HaveKey("mastercard_enrollment_settings"))
			Expect(settings["org_id"]).To(Equal("orgtest1"))
		})
	})

	Describe("GetOrCreateCard", func() {
		It("should enroll a new card when none matches", func() {
			c, err := service.GetOrCreateCard(context.Background(), "4111111111111111")

			Expect(err).ToNot(HaveOccurred())
			Expect(c.ID).To(Equal("bacc1"))
			Expect(enrollments).To(Equal(1))
		})

		It("should reuse an enrolled card, matching on first and last four digits", func() {
			_, err := service.GetOrCreateCard(context.Background(), "4111111111111111")
			Expect(err).ToNot(HaveOccurred())

			c, err := service.GetOrCreateCard(context.Background(), "4111111111111111")

			Expect(err).ToNot(HaveOccurred())
			Expect(c.ID).To(Equal("bacc1"))
			Expect(enrollments).To(Equal(1))
		})

		It("should not match a card with different digits", func() {
			enrolled = append(enrolled, card.Card{ID: "bacc0", CardNumber: maskCard("5500000000000004")})

			c, err := service.GetOrCreateCard(context.Background(), "4111111111111111")

			Expect(err).ToNot(HaveOccurred())
			Expect(c.ID).To(Equal("bacc1"))
			Expect(enrollments).To(Equal(1))
		})
	})
})
