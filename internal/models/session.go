package models

import (
	"time"
)

// Session lifecycle statuses. Transitions only move forward:
// PENDING -> COMPLETED -> APPROVED.
const (
	SessionPending   = "PENDING"
	SessionCompleted = "COMPLETED"
	SessionApproved  = "APPROVED"
)

// ReconciliationSession matches bank-statement figures against recorded
// payments for one account and period.
type ReconciliationSession struct {
	ID                int64            `json:"id" db:"id"`
	BankAccountID     string           `json:"bank_account_id" db:"bank_account_id"`
	PeriodStart       time.Time        `json:"period_start" db:"period_start"`
	PeriodEnd         time.Time        `json:"period_end" db:"period_end"`
	OpeningBalance    int64            `json:"opening_balance" db:"opening_balance"`     // minor units
	StatementBalance  int64            `json:"statement_balance" db:"statement_balance"` // minor units
	Status            string           `json:"status" db:"status"`
	DiscrepancyAmount int64            `json:"discrepancy_amount" db:"discrepancy_amount"`
	Notes             string           `json:"notes,omitempty" db:"notes"`
	StatementFileURL  string           `json:"statement_file_url,omitempty" db:"statement_file_url"`
	CompletedBy       string           `json:"completed_by,omitempty" db:"completed_by"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	ApprovedBy        string           `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt        *time.Time       `json:"approved_at,omitempty" db:"approved_at"`
	ReconciledItems   []ReconciledItem `json:"reconciled_items" db:"-"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// IsOpen reports whether the session can still claim payments for
// duplicate-match purposes. Approved sessions are settled and closed.
func (s *ReconciliationSession) IsOpen() bool {
	return s.Status == SessionPending || s.Status == SessionCompleted
}

// ReconciledItem links one recorded payment into a session. Insertion
// order is matching order.
type ReconciledItem struct {
	ID        int64     `json:"id" db:"id"`
	SessionID int64     `json:"session_id" db:"session_id"`
	PaymentID string    `json:"payment_id" db:"payment_id"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
