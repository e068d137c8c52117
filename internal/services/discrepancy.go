package services

import (
	"context"
	"fmt"

	"github.com/clearledger/backend/internal/models"
)

// DiscrepancyCalculator computes the unexplained balance delta for a
// session. Pure: no mutation, payment amounts come from the payment
// store by id rather than being stored on the item.
type DiscrepancyCalculator struct {
	payments PaymentStore
}

func NewDiscrepancyCalculator(payments PaymentStore) *DiscrepancyCalculator {
	return &DiscrepancyCalculator{payments: payments}
}

// Compute returns statement_balance - opening_balance - sum of matched
// payment amounts. Zero means the session ties out; non-zero is surfaced
// to the operator but does not block completion.
func (c *DiscrepancyCalculator) Compute(ctx context.Context, session *models.ReconciliationSession) (int64, error) {
	var matched int64
	for _, item := range session.ReconciledItems {
		payment, err := c.payments.GetPayment(ctx, item.PaymentID)
		if err != nil {
			return 0, fmt.Errorf("resolve matched payment %s: %w", item.PaymentID, err)
		}
		matched += payment.Amount
	}

	return session.StatementBalance - session.OpeningBalance - matched, nil
}
