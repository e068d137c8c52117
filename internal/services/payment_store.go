package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clearledger/backend/internal/models"
)

// PaymentStore is the recorded-payment collaborator. The reconciliation
// core reads amounts and statuses; the retry coordinator writes outcomes.
type PaymentStore interface {
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	MarkRetryResult(ctx context.Context, paymentID string, success bool, lastError string) error
}

// PostgresPaymentStore backs PaymentStore with the payments table.
type PostgresPaymentStore struct {
	db *sql.DB
}

func NewPostgresPaymentStore(db *sql.DB) *PostgresPaymentStore {
	return &PostgresPaymentStore{db: db}
}

func (s *PostgresPaymentStore) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	p := &models.Payment{}
	var lastError sql.NullString
	err := s.db.QueryRowContext(ctx, `
        SELECT id, payment_id, bank_account_id, amount, currency, status, last_error, created_at, updated_at
        FROM payments
        WHERE payment_id = $1
    `, paymentID).Scan(
		&p.ID, &p.PaymentID, &p.BankAccountID, &p.Amount, &p.Currency,
		&p.Status, &lastError, &p.CreatedAt, &p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment %s: %w", paymentID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	p.LastError = lastError.String
	return p, nil
}

func (s *PostgresPaymentStore) MarkRetryResult(ctx context.Context, paymentID string, success bool, lastError string) error {
	status := models.PaymentFailed
	if success {
		status = models.PaymentCompleted
	}

	result, err := s.db.ExecContext(ctx, `
        UPDATE payments
        SET status = $1, last_error = NULLIF($2, ''), updated_at = $3
        WHERE payment_id = $4
    `, status, lastError, time.Now(), paymentID)

	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", paymentID, ErrNotFound)
	}

	return nil
}
