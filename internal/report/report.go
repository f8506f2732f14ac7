package report

// State is a report's position in its lifecycle. Transitions are strictly
// forward: submitted requires draft, sent_back and approved require
// submitted, processing and paid require approved.
type State string

const (
	StateDraft      State = "draft"
	StateSubmitted  State = "submitted"
	StateSentBack   State = "sent_back"
	StateApproved   State = "approved"
	StateProcessing State = "processing"
	StatePaid       State = "paid"
)

// Report is an aggregate of expenses. The expense set is fixed at draft
// creation and not mutated afterwards.
type Report struct {
	ID          string  `json:"id"`
	Purpose     string  `json:"purpose"`
	SeqNum      string  `json:"seq_num"`
	State       State   `json:"state"`
	Amount      float64 `json:"amount"`
	NumExpenses int     `json:"num_expenses"`
}
