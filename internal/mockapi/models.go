package mockapi

import "time"

// Storage models for the in-memory platform double. The double holds just
// enough state to honor the orchestration endpoints the suite drives.

type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	FullName     string
	RefreshToken string `gorm:"index"`
	Role         string `gorm:"default:'owner'"`
	Verified     bool
	Active       bool
	CreatedAt    time.Time
}

type Org struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	Currency     string
	OwnerUserID  string `gorm:"index"`
	RefreshToken string `gorm:"index"`
	SettingsJSON string
	NextSeqNum   int `gorm:"default:1"`
	CreatedAt    time.Time
}

type Category struct {
	ID             string `gorm:"primaryKey"`
	OrgID          string `gorm:"index"`
	Name           string
	SubCategory    string
	SystemCategory string
	IsEnabled      bool
	Code           string
}

type SourceAccount struct {
	ID    string `gorm:"primaryKey"`
	OrgID string `gorm:"index"`
	Type  string
}

type Expense struct {
	ID              string `gorm:"primaryKey"`
	OrgID           string `gorm:"index"`
	ClaimAmount     float64
	Currency        string
	Purpose         string
	CategoryID      string
	SourceAccountID string
	ReportID        string `gorm:"index"`
	AssigneeEmail   string
	SpentAt         time.Time
	CreatedAt       time.Time
}

type Card struct {
	ID         string `gorm:"primaryKey"`
	OrgID      string `gorm:"index"`
	CardNumber string
	CreatedAt  time.Time
}

type CardTransaction struct {
	ID               string `gorm:"primaryKey"`
	OrgID            string `gorm:"index"`
	CorporateCardID  string
	Amount           float64
	Currency         string
	Category         string
	MatchedExpenseID string
	CreatedAt        time.Time
}

type Report struct {
	ID        string `gorm:"primaryKey"`
	OrgID     string `gorm:"index"`
	Purpose   string
	SeqNum    int
	State     string `gorm:"default:'draft'"`
	CreatedAt time.Time
}
