package mockapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type reportDocument struct {
	ID          string  `json:"id"`
	Purpose     string  `json:"purpose"`
	SeqNum      string  `json:"seq_num"`
	State       string  `json:"state"`
	NumExpenses int     `json:"num_expenses"`
	Amount      float64 `json:"amount"`
}

func (s *Server) toReportDocument(rep *Report) reportDocument {
	var expenses []Expense
	s.db.Where("report_id = ?", rep.ID).Find(&expenses)

	var total float64
	for _, e := range expenses {
		total += e.ClaimAmount
	}

	return reportDocument{
		ID:          rep.ID,
		Purpose:     rep.Purpose,
		SeqNum:      fmt.Sprintf("C/%06d", rep.SeqNum),
		State:       rep.State,
		NumExpenses: len(expenses),
		Amount:      total,
	}
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Data struct {
			Purpose string `json:"purpose"`
		} `json:"data"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var org Org
	if err := s.db.First(&org, "id = ?", sess.OrgID).Error; err != nil {
		writeError(w, http.StatusNotFound, "org not found")
		return
	}

	rep := Report{
		ID:      "rp" + uuid.NewString()[:10],
		OrgID:   sess.OrgID,
		Purpose: payload.Data.Purpose,
		SeqNum:  org.NextSeqNum,
		State:   "draft",
	}
	if err := s.db.Create(&rep).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create report")
		return
	}
	s.db.Model(&org).Update("next_seq_num", org.NextSeqNum+1)

	writeData(w, http.StatusCreated, s.toReportDocument(&rep))
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	query := s.db.Where("org_id = ?", sess.OrgID)
	if filter := r.URL.Query().Get("id"); strings.HasPrefix(filter, "eq.") {
		query = query.Where("id = ?", strings.TrimPrefix(filter, "eq."))
	}

	var reports []Report
	query.Order("seq_num").Find(&reports)

	docs := make([]reportDocument, len(reports))
	for i := range reports {
		docs[i] = s.toReportDocument(&reports[i])
	}
	writeData(w, http.StatusOK, docs)
}

func (s *Server) loadReport(w http.ResponseWriter, orgID, reportID string) (*Report, bool) {
	var rep Report
	if err := s.db.First(&rep, "id = ? AND org_id = ?", reportID, orgID).Error; err != nil {
		writeError(w, http.StatusNotFound, "report not found")
		return nil, false
	}
	return &rep, true
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	rep, ok := s.loadReport(w, sess.OrgID, payload.Data.ID)
	if !ok {
		return
	}
	if rep.State != "draft" && rep.State != "sent_back" {
		writeError(w, http.StatusBadRequest, "report cannot be submitted from state "+rep.State)
		return
	}

	s.db.Model(rep).Update("state", "submitted")
	rep.State = "submitted"
	writeData(w, http.StatusOK, s.toReportDocument(rep))
}

func (s *Server) handleAddExpenses(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Data struct {
			ID         string   `json:"id"`
			ExpenseIDs []string `json:"expense_ids"`
		} `json:"data"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	rep, ok := s.loadReport(w, sess.OrgID, payload.Data.ID)
	if !ok {
		return
	}
	if rep.State != "draft" {
		writeError(w, http.StatusBadRequest, "expenses can only be added to draft reports")
		return
	}

	s.db.Model(&Expense{}).Where("id IN ?", payload.Data.ExpenseIDs).Update("report_id", rep.ID)
	writeData(w, http.StatusOK, s.toReportDocument(rep))
}

func (s *Server) handleSendBackReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Data struct {
			ID      string `json:"id"`
			Comment string `json:"comment"`
		} `json:"data"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	rep, ok := s.loadReport(w, sess.OrgID, payload.Data.ID)
	if !ok {
		return
	}
	if rep.State != "submitted" {
		writeError(w, http.StatusBadRequest, "only submitted reports can be sent back")
		return
	}

	s.db.Model(rep).Update("state", "sent_back")
	rep.State = "sent_back"
	writeData(w, http.StatusOK, s.toReportDocument(rep))
}

type bulkIDsPayload struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (s *Server) handleApproveReports(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var payload bulkIDsPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	docs := make([]reportDocument, 0, len(payload.Data))
	for _, ref := range payload.Data {
		rep, ok := s.loadReport(w, sess.OrgID, ref.ID)
		if !ok {
			return
		}
		if rep.State != "submitted" {
			writeError(w, http.StatusBadRequest, "only submitted reports can be approved")
			return
		}
		s.db.Model(rep).Update("state", "approved")
		rep.State = "approved"
		docs = append(docs, s.toReportDocument(rep))
	}
	writeData(w, http.StatusOK, docs)
}

// settlementReady simulates the asynchronous settlement/reimbursement
// pipeline: the first SettlementAttempts bulk transitions fail with the
// backend's structured BulkError.
func (s *Server) settlementReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlementTries++
	return s.settlementTries > s.opts.SettlementAttempts
}

func writeBulkSettlementError(w http.ResponseWriter, reportIDs []string) {
	entries := make([]map[string]any, len(reportIDs))
	for i, id := range reportIDs {
		entries[i] = map[string]any{
			"id":      id,
			"message": "Report does not have a settlement",
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": "BulkError",
		"data":  entries,
	})
}

func (s *Server) bulkTransition(w http.ResponseWriter, r *http.Request, fromState, toState string) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var payload bulkIDsPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	ids := make([]string, len(payload.Data))
	for i, ref := range payload.Data {
		ids[i] = ref.ID
	}

	if !s.settlementReady() {
		writeBulkSettlementError(w, ids)
		return
	}

	docs := make([]reportDocument, 0, len(ids))
	for _, id := range ids {
		rep, ok := s.loadReport(w, sess.OrgID, id)
		if !ok {
			return
		}
		if rep.State != fromState {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("report must be %s to become %s", fromState, toState))
			return
		}
		s.db.Model(rep).Update("state", toState)
		rep.State = toState
		docs = append(docs, s.toReportDocument(rep))
	}
	writeData(w, http.StatusOK, docs)
}

func (s *Server) handleProcessReports(w http.ResponseWriter, r *http.Request) {
	s.bulkTransition(w, r, "approved", "processing")
}

func (s *Server) handleMarkPaidReports(w http.ResponseWriter, r *http.Request) {
	s.bulkTransition(w, r, "approved", "paid")
}

func (s *Server) handleCreateAndSubmitReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Data struct {
			ExpenseIDs []string `json:"expense_ids"`
		} `json:"data"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var org Org
	if err := s.db.First(&org, "id = ?", sess.OrgID).Error; err != nil {
		writeError(w, http.StatusNotFound, "org not found")
		return
	}

	rep := Report{
		ID:      "rp" + uuid.NewString()[:10],
		OrgID:   sess.OrgID,
		Purpose: "Corporate card report",
		SeqNum:  org.NextSeqNum,
		State:   "submitted",
	}
	if err := s.db.Create(&rep).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create report")
		return
	}
	s.db.Model(&org).Update("next_seq_num", org.NextSeqNum+1)
	s.db.Model(&Expense{}).Where("id IN ?", payload.Data.ExpenseIDs).Update("report_id", rep.ID)

	writeData(w, http.StatusCreated, s.toReportDocument(&rep))
}

// ----------------- INTACCT INTERNAL API -----------------

func (s *Server) requireInternalClientID(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.InternalAPIClientID == "" {
		return true
	}
	if r.Header.Get("X-Internal-API-Client-ID") != s.opts.InternalAPIClientID {
		writeError(w, http.StatusUnauthorized, "invalid internal API client ID")
		return false
	}
	return true
}

func (s *Server) handleExportedEntry(w http.ResponseWriter, r *http.Request) {
	if !s.requireInternalClientID(w, r) {
		return
	}

	query := r.URL.Query()
	internalID := query.Get("internal_id")
	orgID := query.Get("org_id")
	if internalID == "" || orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id and internal_id are required")
		return
	}

	var exp Expense
	if err := s.db.First(&exp, "id = ? AND org_id = ?", internalID, orgID).Error; err != nil {
		writeError(w, http.StatusNotFound, "exported entry not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"cctransaction": map[string]any{
				"RECORDNO":    exp.ID,
				"TOTALAMOUNT": exp.ClaimAmount,
				"CURRENCY":    exp.Currency,
				"DESCRIPTION": exp.Purpose,
			},
		},
	})
}

func (s *Server) handleSetupWorkspace(w http.ResponseWriter, r *http.Request) {
	if !s.requireInternalClientID(w, r) {
		return
	}

	var payload struct {
		WorkspaceID int `json:"workspace_id"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	s.mu.Lock()
	s.workspaces[payload.WorkspaceID] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"workspace_id": payload.WorkspaceID, "status": "ready"})
}

func (s *Server) handleDestroyWorkspace(w http.ResponseWriter, r *http.Request) {
	if !s.requireInternalClientID(w, r) {
		return
	}

	workspaceID, err := strconv.Atoi(r.URL.Query().Get("workspace_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "workspace_id is required")
		return
	}

	s.mu.Lock()
	known := s.workspaces[workspaceID]
	delete(s.workspaces, workspaceID)
	s.mu.Unlock()

	if !known {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspace_id": workspaceID, "status": "deleted"})
}
