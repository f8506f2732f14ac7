package card

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/account"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/orgsettings"
	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/platform"
)

// Card is one enrolled corporate card. CardNumber comes back masked, so
// matching is done on the first and last four digits.
type Card struct {
	ID         string `json:"id"`
	CardNumber string `json:"card_number"`
}

// Service enrolls and reuses test corporate cards for an account.
type Service struct {
	client *platform.Client
	acct   *account.Account
	logger *slog.Logger
}

func NewService(client *platform.Client, acct *account.Account, logger *slog.Logger) *Service {
	return &Service{client: client, acct: acct, logger: logger}
}

// Init enables corporate card and enrollment settings on the org before
// returning a card service. Without these settings the enroll call is
// rejected.
func Init(ctx context.Context, client *platform.Client, acct *account.Account, logger *slog.Logger) (*Service, error) {
	settings := orgsettings.NewManager(client, acct, logger)
	_, err := settings.Update(ctx, orgsettings.Settings{
		"corporate_credit_card_settings": map[string]any{
			"allowed": true,
			"enabled": true,
			"bank_statement_upload_settings": map[string]any{
				"enabled":                                 true,
				"generic_statement_parser_enabled":        true,
				"bank_statement_parser_endpoint_settings": []any{},
			},
			"bank_data_aggregation_settings": map[string]any{
				"enabled":     false,
				"aggregator":  nil,
				"auto_assign": false,
			},
			"auto_match_allowed":         true,
			"enable_auto_match":          true,
			"allow_approved_plus_states": true,
			"disable_mark_personal":      false,
		},
		"visa_enrollment_settings": map[string]any{
			"allowed": true,
			"enabled": true,
		},
		"mastercard_enrollment_settings": map[string]any{
			"allowed": true,
			"enabled": true,
		},
	})
	if err != nil {
		return nil, err
	}

	return NewService(client, acct, logger), nil
}

func (s *Service) GetCards(ctx context.Context) ([]Card, error) {
	var out platform.Envelope[[]Card]
	err := s.client.Do(ctx, "get corporate cards", http.MethodGet, "/platform/v1/spender/corporate_cards", s.acct.OwnerAccessToken(), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetOrCreateCard returns the already-enrolled card matching cardNumber if
// one exists, enrolling a new one otherwise. Enrollment is slow and the
// backend rejects duplicates, so reuse is the common path.
func (s *Service) GetOrCreateCard(ctx context.Context, cardNumber string) (Card, error) {
	cards, err := s.GetCards(ctx)
	if err != nil {
		return Card{}, err
	}

	for _, c := range cards {
		if matchesCardNumber(c.CardNumber, cardNumber) {
			s.logger.Info("reusing enrolled corporate card", "card_id", c.ID)
			return c, nil
		}
	}

	return s.enrollVisaCard(ctx, cardNumber)
}

func (s *Service) enrollVisaCard(ctx context.Context, cardNumber string) (Card, error) {
	var out platform.Envelope[Card]
	err := s.client.Do(ctx, "enroll corporate card", http.MethodPost, "/platform/v1/spender/corporate_cards/visa_enroll", s.acct.OwnerAccessToken(),
		platform.Envelope[map[string]any]{Data: map[string]any{"card_number": cardNumber}}, &out)
	if err != nil {
		return Card{}, err
	}

	s.logger.Info("corporate card enrolled", "card_id", out.Data.ID)
	return out.Data, nil
}

// matchesCardNumber compares first and last four digits; stored card numbers
// are masked in between.
func matchesCardNumber(stored, requested string) bool {
	if len(stored) < 8 || len(requested) < 8 {
		return false
	}
	return stored[:4] == requested[:4] && stored[len(stored)-4:] == requested[len(requested)-4:]
}
