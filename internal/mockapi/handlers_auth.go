package mockapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type signupPayload struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
	SignupParams struct {
		OrgCurrency string `json:"org_currency"`
	} `json:"signup_params"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.signupCalls < len(s.opts.SignupFailures) {
		status := s.opts.SignupFailures[s.signupCalls]
		s.signupCalls++
		s.mu.Unlock()
		writeError(w, status, "signup unavailable")
		return
	}
	s.signupCalls++
	s.mu.Unlock()

	var payload signupPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	currency := payload.SignupParams.OrgCurrency
	if currency == "" {
		currency = "USD"
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        payload.Email,
		PasswordHash: string(hash),
		FullName:     payload.FullName,
		RefreshToken: uuid.NewString(),
		Role:         "owner",
	}
	if err := s.db.Create(&user).Error; err != nil {
		writeError(w, http.StatusConflict, "user already exists")
		return
	}

	org := Org{
		ID:           "or" + uuid.NewString()[:10],
		Name:         payload.FullName + "'s Org",
		Currency:     currency,
		OwnerUserID:  user.ID,
		RefreshToken: uuid.NewString(),
		SettingsJSON: "{}",
	}
	if err := s.db.Create(&org).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create org")
		return
	}

	s.seedOrgFixtures(org.ID)
	writeData(w, http.StatusCreated, map[string]any{"id": user.ID, "email": user.Email})
}

// seedOrgFixtures creates the categories and source accounts the backend
// initializes asynchronously for every new org.
func (s *Server) seedOrgFixtures(orgID string) {
	categories := []Category{
		{Name: "Unspecified", SystemCategory: "Unspecified", IsEnabled: true},
		{Name: "Travel", SystemCategory: "Others", IsEnabled: true},
		{Name: "Food", SystemCategory: "Others", IsEnabled: true},
		{Name: "Office Supplies", SystemCategory: "Others", IsEnabled: true},
		{Name: "Mileage", SystemCategory: "Mileage", IsEnabled: true},
		{Name: "Per Diem", SystemCategory: "Per Diem", IsEnabled: true},
		{Name: "Activity", SystemCategory: "Activity", IsEnabled: true},
	}
	for i := range categories {
		categories[i].ID = uuid.NewString()
		categories[i].OrgID = orgID
	}
	s.db.Create(&categories)

	accounts := []SourceAccount{
		{ID: uuid.NewString(), OrgID: orgID, Type: "PERSONAL_CASH_ACCOUNT"},
		{ID: uuid.NewString(), OrgID: orgID, Type: "PERSONAL_CORPORATE_CREDIT_CARD_ACCOUNT"},
	}
	s.db.Create(&accounts)
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var user User
	if err := s.db.First(&user, "email = ?", payload.Email).Error; err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"refresh_token": user.RefreshToken})
}

func (s *Server) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var user User
	var orgID string
	if err := s.db.First(&user, "refresh_token = ?", payload.RefreshToken).Error; err != nil {
		// Org-scoped refresh tokens map back to the owning user.
		var org Org
		if err := s.db.First(&org, "refresh_token = ?", payload.RefreshToken).Error; err != nil {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		if err := s.db.First(&user, "id = ?", org.OwnerUserID).Error; err != nil {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		orgID = org.ID
	} else {
		var org Org
		if err := s.db.First(&org, "owner_user_id = ?", user.ID).Error; err == nil {
			orgID = org.ID
		}
	}

	token, err := s.mintAccessToken(&user, orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mint token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func (s *Server) handleEmailVerify(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if sess.Role != "super_admin" {
		writeError(w, http.StatusUnauthorized, "super admin token required")
		return
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var user User
	if err := s.db.First(&user, "email = ?", payload.Email).Error; err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	s.db.Model(&user).Update("verified", true)
	writeJSON(w, http.StatusOK, map[string]string{"refresh_token": user.RefreshToken})
}

func (s *Server) handleMarkActive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	s.db.Model(&User{}).Where("id = ?", sess.User.ID).Update("active", true)
	writeJSON(w, http.StatusOK, map[string]string{"message": "user marked active"})
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	s.onboardingPolls[sess.User.ID]++
	ready := s.onboardingPolls[sess.User.ID] > s.opts.OnboardingPolls
	s.mu.Unlock()

	if !ready {
		writeError(w, http.StatusNotFound, "onboarding not initialised")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user_id": sess.User.ID, "state": "COMPLETED"})
}

// ----------------- ORGS -----------------

func (s *Server) orgForSession(sess *session) (*Org, error) {
	var org Org
	query := s.db.Where("owner_user_id = ?", sess.User.ID)
	if sess.OrgID != "" {
		query = s.db.Where("id = ?", sess.OrgID)
	}
	if err := query.First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func orgDocument(org *Org) map[string]any {
	return map[string]any{
		"id":       org.ID,
		"name":     org.Name,
		"currency": org.Currency,
	}
}

func (s *Server) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var orgs []Org
	s.db.Where("owner_user_id = ?", sess.User.ID).Find(&orgs)

	docs := make([]map[string]any, len(orgs))
	for i := range orgs {
		docs[i] = orgDocument(&orgs[i])
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleSpenderOrgs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var orgs []Org
	s.db.Where("owner_user_id = ?", sess.User.ID).Find(&orgs)

	docs := make([]map[string]any, len(orgs))
	for i := range orgs {
		docs[i] = orgDocument(&orgs[i])
	}
	writeData(w, http.StatusOK, docs)
}

func (s *Server) handleUpdateOrg(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var doc map[string]any
	if err := decodeBody(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	org, err := s.orgForSession(sess)
	if err != nil {
		writeError(w, http.StatusNotFound, "org not found")
		return
	}

	if name, ok := doc["name"].(string); ok {
		org.Name = name
	}
	s.db.Save(org)

	writeJSON(w, http.StatusOK, orgDocument(org))
}

func (s *Server) handleOrgRefreshToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireSession(w, r); !ok {
		return
	}

	orgID := chi.URLParam(r, "orgID")
	var org Org
	if err := s.db.First(&org, "id = ?", orgID).Error; err != nil {
		writeError(w, http.StatusNotFound, "org not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"refresh_token": org.RefreshToken})
}

func (s *Server) handleDeleteOrg(w http.ResponseWriter, r *http.Request) {
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

	var org Org
	if err := s.db.First(&org, "id = ?", payload.Data.ID).Error; err != nil {
		writeError(w, http.StatusNotFound, "org not found")
		return
	}
	if org.OwnerUserID != sess.User.ID {
		writeError(w, http.StatusForbidden, "only the owner can delete an org")
		return
	}

	s.db.Where("org_id = ?", org.ID).Delete(&Category{})
	s.db.Where("org_id = ?", org.ID).Delete(&SourceAccount{})
	s.db.Where("org_id = ?", org.ID).Delete(&Expense{})
	s.db.Where("org_id = ?", org.ID).Delete(&Report{})
	s.db.Where("org_id = ?", org.ID).Delete(&Card{})
	s.db.Where("org_id = ?", org.ID).Delete(&CardTransaction{})
	s.db.Delete(&org)

	writeData(w, http.StatusOK, map[string]any{"id": org.ID, "deleted_at": time.Now().Format(time.RFC3339)})
}

func (s *Server) handleGetOrgSettings(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	org, err := s.orgForSession(sess)
	if err != nil {
		writeError(w, http.StatusNotFound, "org not found")
		return
	}

	var settings map[string]any
	if err := json.Unmarshal([]byte(org.SettingsJSON), &settings); err != nil {
		settings = map[string]any{}
	}
	writeData(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateOrgSettings(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var settings map[string]any
	if err := decodeBody(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	org, err := s.orgForSession(sess)
	if err != nil {
		writeError(w, http.StatusNotFound, "org not found")
		return
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings document")
		return
	}
	s.db.Model(org).Update("settings_json", string(raw))

	writeJSON(w, http.StatusOK, settings)
}
