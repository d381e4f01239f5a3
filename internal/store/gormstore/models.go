package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table. Balance columns are a projection of ledger_entries.
type Account struct {
	AccountID         string    `gorm:"primaryKey"`
	UserID            string    `gorm:"not null;uniqueIndex:idx_accounts_user"`
	AvailablePoints   int64     `gorm:"not null;default:0"`
	ReservedPoints    int64     `gorm:"not null;default:0"`
	TotalEarnedPoints int64     `gorm:"not null;default:0;index:idx_accounts_leaderboard,priority:1,sort:desc"`
	DebtPoints        int64     `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null;index:idx_accounts_leaderboard,priority:2"`
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the ledger_entries table. ID gives entries a total insertion order.
type LedgerEntry struct {
	ID              uint64         `gorm:"primaryKey;autoIncrement"`
	EntryID         string         `gorm:"not null;uniqueIndex:idx_ledger_entry_id"`
	AccountID       string         `gorm:"not null;index:idx_ledger_account_kind,priority:1"`
	Kind            string         `gorm:"not null;index:idx_ledger_account_kind,priority:2"`
	AmountPoints    int64          `gorm:"not null"`
	ReservedDelta   int64          `gorm:"not null;default:0"`
	ShortfallPoints int64          `gorm:"not null;default:0"`
	Reference       string         `gorm:"not null;index:idx_ledger_reference"`
	IdempotencyKey  string         `gorm:"not null;uniqueIndex:uniq_entry_idem"`
	Metadata        datatypes.JSON `gorm:"not null"`
	CreatedAt       time.Time      `gorm:"not null"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// SurveyCompletion mirrors the survey_completions table.
type SurveyCompletion struct {
	CompletionID         string    `gorm:"primaryKey"`
	UserID               string    `gorm:"not null;index:idx_completions_user_created,priority:1"`
	Provider             string    `gorm:"not null;uniqueIndex:uniq_completion_external,priority:1"`
	OfferID              string    `gorm:"not null;uniqueIndex:uniq_completion_external,priority:2"`
	ExternalCompletionID string    `gorm:"not null;uniqueIndex:uniq_completion_external,priority:3"`
	Points               int64     `gorm:"not null;default:0"`
	Status               string    `gorm:"not null"`
	ReversalReason       string    `gorm:"not null;default:''"`
	CreatedAt            time.Time `gorm:"not null;index:idx_completions_user_created,priority:2"`
}

func (SurveyCompletion) TableName() string { return "survey_completions" }

// Withdrawal mirrors the withdrawals table.
type Withdrawal struct {
	WithdrawalID string     `gorm:"primaryKey"`
	UserID       string     `gorm:"not null;index:idx_withdrawals_user_created,priority:1"`
	AmountPoints int64      `gorm:"not null"`
	Method       string     `gorm:"not null"`
	Details      string     `gorm:"not null"`
	Status       string     `gorm:"not null;index:idx_withdrawals_status"`
	CreatedAt    time.Time  `gorm:"not null;index:idx_withdrawals_user_created,priority:2"`
	ResolvedAt   *time.Time `gorm:""`
}

func (Withdrawal) TableName() string { return "withdrawals" }

// Models lists every table owned by this package, in migration order.
func Models() []interface{} {
	return []interface{}{&Account{}, &LedgerEntry{}, &SurveyCompletion{}, &Withdrawal{}}
}
