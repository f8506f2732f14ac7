package expense

import "time"

// State controls whether generated expenses are complete (random eligible
// category) or incomplete (the Unspecified category, so the record needs
// user action before it can be reported).
type State string

const (
	StateIncomplete State = "incomplete"
	StateComplete   State = "complete"
)

type SourceAccountType string

const (
	SourceAccountCash          SourceAccountType = "PERSONAL_CASH_ACCOUNT"
	SourceAccountCorporateCard SourceAccountType = "PERSONAL_CORPORATE_CREDIT_CARD_ACCOUNT"
)

// SourceAccount is a funding source attached to the user.
type SourceAccount struct {
	ID   string            `json:"id"`
	Type SourceAccountType `json:"type"`
}

// Expense is one spend record as returned by the platform API.
type Expense struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	ClaimAmount float64   `json:"claim_amount"`
	Currency    string    `json:"currency"`
	Purpose     string    `json:"purpose"`
	CategoryID  string    `json:"category_id"`
	ReportID    string    `json:"report_id"`
	SpentAt     time.Time `json:"spent_at"`
	State       string    `json:"state"`
}

// CardTransaction is an externally-fed corporate card charge. The backend
// asynchronously matches each transaction to a synthesized expense;
// MatchedExpenseIDs stays empty until that pipeline has run.
type CardTransaction struct {
	ID                string   `json:"id"`
	Amount            float64  `json:"amount"`
	Currency          string   `json:"currency"`
	Category          string   `json:"category"`
	CorporateCardID   string   `json:"corporate_card_id"`
	MatchedExpenseIDs []string `json:"matched_expense_ids"`
}

type AmountRange struct {
	Min float64
	Max float64
}

type DateRange struct {
	Start time.Time
	End   time.Time
}

// Config tunes the randomized-but-seeded test data. Zero values fall back to
// amounts in [1, 100] and spend dates within the last 30 days of RefDate
// (or of now when RefDate is zero).
type Config struct {
	Amount    *AmountRange
	RefDate   time.Time
	DateRange *DateRange
}
