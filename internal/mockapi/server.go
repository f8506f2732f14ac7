package mockapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Options configures the platform double. The poll/attempt knobs simulate
// the asynchronous backend pipelines the real product runs: until the
// configured number of lookups has happened, the double answers as if the
// pipeline had not completed yet.
type Options struct {
	// SignupFailures is a queue of status codes returned for successive
	// signup calls before signup starts succeeding.
	SignupFailures []int

	// OnboardingPolls is how many onboarding fetches return 404 before the
	// onboarding data exists.
	OnboardingPolls int

	// CategoryInitPolls is how many spender category fetches return an empty
	// set before the seeded categories appear.
	CategoryInitPolls int

	// CCTMatchPolls is how many transaction lookups report empty
	// matched_expense_ids before matches appear.
	CCTMatchPolls int

	// SettlementAttempts is how many bulk process/mark-paid calls fail with
	// a BulkError before settlements exist.
	SettlementAttempts int

	JWTSecret           string
	SuperAdminEmail     string
	SuperAdminPassword  string
	InternalAPIClientID string
}

// Server is an in-process double of the platform API, backed by an in-memory
// sqlite database. It exists so the suite's own integration tests (and local
// development via the mock-api command) can run hermetically.
type Server struct {
	db     *gorm.DB
	opts   Options
	logger *slog.Logger

	mu              sync.Mutex
	signupCalls     int
	onboardingPolls map[string]int
	categoryPolls   map[string]int
	cctPolls        int
	settlementTries int
	workspaces      map[int]bool
}

func New(opts Options, logger *slog.Logger) (*Server, error) {
	if opts.JWTSecret == "" {
		opts.JWTSecret = "mockapi-signing-secret"
	}

	// A named in-memory database keeps every pooled connection on the same
	// data while isolating separate Server instances from each other.
	dsn := fmt.Sprintf("file:mockapi-%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString()[:8])
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mock database: %w", err)
	}

	err = db.AutoMigrate(&User{}, &Org{}, &Category{}, &SourceAccount{}, &Expense{}, &Card{}, &CardTransaction{}, &Report{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate mock database: %w", err)
	}

	s := &Server{
		db:              db,
		opts:            opts,
		logger:          logger,
		onboardingPolls: make(map[string]int),
		categoryPolls:   make(map[string]int),
		workspaces:      make(map[int]bool),
	}

	if opts.SuperAdminEmail != "" {
		if err := s.seedSuperAdmin(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Server) seedSuperAdmin() error {
	hash, err := bcrypt.GenerateFromPassword([]byte(s.opts.SuperAdminPassword), bcrypt.MinCost)
	if err != nil {
		return err
	}
	return s.db.Create(&User{
		ID:           uuid.NewString(),
		Email:        s.opts.SuperAdminEmail,
		PasswordHash: string(hash),
		FullName:     "Super Admin",
		RefreshToken: uuid.NewString(),
		Role:         "super_admin",
		Verified:     true,
		Active:       true,
	}).Error
}

// Router returns the chi router serving every endpoint the suite drives.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/basic/signup", s.handleSignup)
		r.Post("/auth/basic/signin", s.handleSignin)
		r.Post("/auth/access_token", s.handleAccessToken)
		r.Post("/auth/test/email_verify", s.handleEmailVerify)
		r.Post("/orgusers/current/mark_active", s.handleMarkActive)
		r.Get("/orgs", s.handleListOrgs)
		r.Post("/orgs/", s.handleUpdateOrg)
		r.Post("/orgs/{orgID}/refresh_token", s.handleOrgRefreshToken)
		r.Get("/org/settings", s.handleGetOrgSettings)
		r.Post("/org/settings", s.handleUpdateOrgSettings)
	})

	r.Route("/platform/v1", func(r chi.Router) {
		r.Get("/spender/onboarding", s.handleOnboarding)
		r.Get("/spender/orgs", s.handleSpenderOrgs)
		r.Post("/owner/orgs/delete", s.handleDeleteOrg)

		r.Get("/spender/categories", s.handleSpenderCategories)
		r.Get("/admin/categories", s.handleAdminCategories)
		r.Post("/admin/categories/bulk", s.handleBulkUpsertCategories)

		r.Get("/spender/accounts", s.handleSourceAccounts)
		r.Post("/spender/expenses", s.handleCreateExpense)
		r.Get("/spender/expenses/", s.handleListExpenses)
		r.Post("/admin/expenses", s.handleCreateExpense)
		r.Get("/admin/expenses/", s.handleListExpenses)

		r.Post("/admin/corporate_card_transactions", s.handleCreateCardTransaction)
		r.Get("/admin/corporate_card_transactions", s.handleListCardTransactions)
		r.Get("/spender/corporate_cards", s.handleListCards)
		r.Post("/spender/corporate_cards/visa_enroll", s.handleVisaEnroll)

		r.Post("/spender/reports", s.handleCreateReport)
		r.Get("/spender/reports/", s.handleListReports)
		r.Post("/spender/reports/submit", s.handleSubmitReport)
		r.Post("/spender/reports/add_expenses", s.handleAddExpenses)
		r.Post("/admin/reports/send_back", s.handleSendBackReport)
		r.Post("/admin/reports/approve/bulk", s.handleApproveReports)
		r.Post("/admin/reports/process_manual/bulk", s.handleProcessReports)
		r.Post("/admin/reports/mark_paid/bulk", s.handleMarkPaidReports)
		r.Post("/admin/reports/create_and_submit", s.handleCreateAndSubmitReport)
	})

	r.Route("/intacct-api/internal_api", func(r chi.Router) {
		r.Get("/exported_entry/", s.handleExportedEntry)
		r.Post("/integration_test_orgs/", s.handleSetupWorkspace)
		r.Delete("/integration_test_orgs/", s.handleDestroyWorkspace)
	})

	return r
}

// ----------------- RESPONSE HELPERS -----------------

type envelope struct {
	Data any `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

func decodeBody(r *http.Request, out any) error {
	return json.NewDecoder(r.Body).Decode(out)
}

// ----------------- AUTH -----------------

func (s *Server) mintAccessToken(user *User, orgID string) (string, error) {
	claims := jwt.MapClaims{
		"sub":    user.ID,
		"org_id": orgID,
		"role":   user.Role,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"iat":    time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.opts.JWTSecret))
}

type session struct {
	User  User
	OrgID string
	Role  string
}

// currentSession parses the bearer token and loads the calling user.
func (s *Server) currentSession(r *http.Request) (*session, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, fmt.Errorf("missing bearer token")
	}

	parsed, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.opts.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	userID, _ := claims["sub"].(string)
	orgID, _ := claims["org_id"].(string)
	role, _ := claims["role"].(string)

	var user User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("unknown user")
	}

	return &session{User: user, OrgID: orgID, Role: role}, nil
}

func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sess, err := s.currentSession(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return nil, false
	}
	return sess, true
}
