package models

import (
	"time"
)

// Payment statuses as recorded by the payment store. Only FAILED
// payments are eligible for retry.
const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
)

// Payment is the recorded payment this service reconciles and retries.
// The gateway owns the actual charge; this row mirrors its outcome.
type Payment struct {
	ID            int64     `json:"id" db:"id"`
	PaymentID     string    `json:"payment_id" db:"payment_id"`
	BankAccountID string    `json:"bank_account_id" db:"bank_account_id"`
	Amount        int64     `json:"amount" db:"amount"` // minor units
	Currency      string    `json:"currency" db:"currency"`
	Status        string    `json:"status" db:"status"`
	LastError     string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// PaymentRetryOutcome is the terminal result of one retry invocation.
// A still-failing payment is an ordinary outcome, not an error.
type PaymentRetryOutcome struct {
	PaymentID string `json:"payment_id"`
	Success   bool   `json:"success"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}
