package mockapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ----------------- CATEGORIES -----------------

type categoryDocument struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SubCategory    string `json:"sub_category,omitempty"`
	SystemCategory string `json:"system_category"`
	IsEnabled      bool   `json:"is_enabled"`
	Code           string `json:"code,omitempty"`
}

func toCategoryDocument(c *Category) categoryDocument {
	return categoryDocument{
		ID:             c.ID,
		Name:           c.Name,
		SubCategory:    c.SubCategory,
		SystemCategory: c.SystemCategory,
		IsEnabled:      c.IsEnabled,
		Code:           c.Code,
	}
}

func (s *Server) handleSpenderCategories(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	// Category initialization is asynchronous in the real backend; the first
	// CategoryInitPolls fetches see an empty org.
	s.mu.Lock()
	s.categoryPolls[sess.OrgID]++
	initialized := s.categoryPolls[sess.OrgID] > s.opts.CategoryInitPolls
	s.mu.Unlock()

	if !initialized {
		writeData(w, http.StatusOK, []categoryDocument{})
		return
	}

	var categories []Category
	s.db.Where("org_id = ? AND is_enabled = ? AND system_category != ?", sess.OrgID, true, "Activity").Find(&categories)

	docs := make([]categoryDocument, len(categories))
	for i := range categories {
		docs[i] = toCategoryDocument(&categories[i])
	}
	writeData(w, http.StatusOK, docs)
}

func (s *Server) handleAdminCategories(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var categories []Category
	s.db.Where("org_id = ?", sess.OrgID).Find(&categories)

	docs := make([]categoryDocument, len(categories))
	for i := range categories {
		docs[i] = toCategoryDocument(&categories[i])
	}
	writeData(w, http.StatusOK, docs)
}

func (s *Server) handleBulkUpsertCategories(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Data []categoryDocument `json:"data"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	for _, doc := range payload.Data {
		var existing Category
		err := s.db.First(&existing, "org_id = ? AND name = ?", sess.OrgID, doc.Name).Error
		if err == nil {
			existing.SubCategory = doc.SubCategory
			existing.SystemCategory = doc.SystemCategory
			existing.IsEnabled = doc.IsEnabled
			existing.Code = doc.Code
			s.db.Save(&existing)
			continue
		}

		s.db.Create(&Category{
			ID:             uuid.NewString(),
			OrgID:          sess.OrgID,
			Name:           doc.Name,
			SubCategory:    doc.SubCategory,
			SystemCategory: doc.SystemCategory,
			IsEnabled:      doc.IsEnabled,
			Code:           doc.Code,
		})
	}

	writeData(w, http.StatusOK, map[string]any{"updated": len(payload.Data)})
}

// ----------------- SOURCE ACCOUNTS -----------------

func (s *Server) handleSourceAccounts(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var accounts []SourceAccount
	s.db.Where("org_id = ?", sess.OrgID).Find(&accounts)

	docs := make([]map[string]any, len(accounts))
	for i, acc := range accounts {
		docs[i] = map[string]any{"id": acc.ID, "type": acc.Type}
	}
	writeData(w, http.StatusOK, docs)
}

// ----------------- EXPENSES -----------------

type expenseDocument struct {
	ID          string  `json:"id"`
	ClaimAmount float64 `json:"claim_amount"`
	Currency    string  `json:"currency"`
	Purpose     string  `json:"purpose"`
	CategoryID  string  `json:"category_id"`
	ReportID    string  `json:"report_id"`
	SpentAt     string  `json:"spent_at"`
}

func toExpenseDocument(e *Expense) expenseDocument {
	return expenseDocument{
		ID:          e.ID,
		ClaimAmount: e.ClaimAmount,
		Currency:    e.Currency,
		Purpose:     e.Purpose,
		CategoryID:  e.CategoryID,
		ReportID:    e.ReportID,
		SpentAt:     e.SpentAt.Format(time.RFC3339),
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Data struct {
			SpentAt           string  `json:"spent_at"`
			ClaimAmount       float64 `json:"claim_amount"`
			Purpose           string  `json:"purpose"`
			CategoryID        string  `json:"category_id"`
			SourceAccountID   string  `json:"source_account_id"`
			AssigneeUserEmail string  `json:"assignee_user_email"`
		} `json:"data"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	spentAt, _ := time.Parse(time.RFC3339, payload.Data.SpentAt)
	exp := Expense{
		ID:              "tx" + uuid.NewString()[:10],
		OrgID:           sess.OrgID,
		ClaimAmount:     payload.Data.ClaimAmount,
		Currency:        "USD",
		Purpose:         payload.Data.Purpose,
		CategoryID:      payload.Data.CategoryID,
		SourceAccountID: payload.Data.SourceAccountID,
		AssigneeEmail:   payload.Data.AssigneeUserEmail,
		SpentAt:         spentAt,
	}
	if err := s.db.Create(&exp).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create expense")
		return
	}

	writeData(w, http.StatusCreated, toExpenseDocument(&exp))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	query := s.db.Where("org_id = ?", sess.OrgID)
	if filter := r.URL.Query().Get("id"); strings.HasPrefix(filter, "eq.") {
		query = query.Where("id = ?", strings.TrimPrefix(filter, "eq."))
	}

	var expenses []Expense
	query.Find(&expenses)

	docs := make([]expenseDocument, len(expenses))
	for i := range expenses {
		docs[i] = toExpenseDocument(&expenses[i])
	}
	writeData(w, http.StatusOK, docs)
}

// ----------------- CORPORATE CARDS -----------------

func maskCardNumber(cardNumber string) string {
	if len(cardNumber) < 8 {
		return cardNumber
	}
	return cardNumber[:4] + strings.Repeat("*", len(cardNumber)-8) + cardNumber[len(cardNumber)-4:]
}

func (s *Server) handleVisaEnroll(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Data struct {
			CardNumber string `json:"card_number"`
		} `json:"data"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	card := Card{
		ID:         "bacc" + uuid.NewString()[:8],
		OrgID:      sess.OrgID,
		CardNumber: maskCardNumber(payload.Data.CardNumber),
	}
	if err := s.db.Create(&card).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enroll card")
		return
	}

	writeData(w, http.StatusCreated, map[string]any{"id": card.ID, "card_number": card.CardNumber})
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var cards []Card
	s.db.Where("org_id = ?", sess.OrgID).Find(&cards)

	docs := make([]map[string]any, len(cards))
	for i, c := range cards {
		docs[i] = map[string]any{"id": c.ID, "card_number": c.CardNumber}
	}
	writeData(w, http.StatusOK, docs)
}

// ----------------- CARD TRANSACTIONS -----------------

func (s *Server) handleCreateCardTransaction(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Data struct {
			SpentAt         string  `json:"spent_at"`
			Amount          float64 `json:"amount"`
			Category        string  `json:"category"`
			CorporateCardID string  `json:"corporate_card_id"`
			Currency        string  `json:"currency"`
		} `json:"data"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	spentAt, _ := time.Parse(time.RFC3339, payload.Data.SpentAt)

	// The real backend matches each transaction to a synthesized expense
	// asynchronously; here the expense exists immediately but its ID is only
	// exposed once the configured number of polls has happened.
	matched := Expense{
		ID:          "tx" + uuid.NewString()[:10],
		OrgID:       sess.OrgID,
		ClaimAmount: payload.Data.Amount,
		Currency:    payload.Data.Currency,
		Purpose:     "Corporate card expense",
		SpentAt:     spentAt,
	}
	s.db.Create(&matched)

	txn := CardTransaction{
		ID:               "btxn" + uuid.NewString()[:8],
		OrgID:            sess.OrgID,
		CorporateCardID:  payload.Data.CorporateCardID,
		Amount:           payload.Data.Amount,
		Currency:         payload.Data.Currency,
		Category:         payload.Data.Category,
		MatchedExpenseID: matched.ID,
	}
	if err := s.db.Create(&txn).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create transaction")
		return
	}

	writeData(w, http.StatusCreated, map[string]any{
		"id":                  txn.ID,
		"amount":              txn.Amount,
		"currency":            txn.Currency,
		"category":            txn.Category,
		"corporate_card_id":   txn.CorporateCardID,
		"matched_expense_ids": []string{},
	})
}

func (s *Server) handleListCardTransactions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	s.cctPolls++
	matchedVisible := s.cctPolls > s.opts.CCTMatchPolls
	s.mu.Unlock()

	query := s.db.Where("org_id = ?", sess.OrgID)
	if filter := r.URL.Query().Get("id"); strings.HasPrefix(filter, "in.(") {
		ids := strings.Split(strings.TrimSuffix(strings.TrimPrefix(filter, "in.("), ")"), ",")
		query = query.Where("id IN ?", ids)
	}

	var txns []CardTransaction
	query.Find(&txns)

	docs := make([]map[string]any, len(txns))
	for i, txn := range txns {
		matchedIDs := []string{}
		if matchedVisible {
			matchedIDs = []string{txn.MatchedExpenseID}
		}
		docs[i] = map[string]any{
			"id":                  txn.ID,
			"amount":              txn.Amount,
			"currency":            txn.Currency,
			"category":            txn.Category,
			"corporate_card_id":   txn.CorporateCardID,
			"matched_expense_ids": matchedIDs,
		}
	}
	writeData(w, http.StatusOK, docs)
}
