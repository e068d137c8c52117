package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/clearledger/backend/internal/models"
)

type MockPaymentStore struct {
	mock.Mock
}

func (m *MockPaymentStore) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentStore) MarkRetryResult(ctx context.Context, paymentID string, success bool, lastError string) error {
	args := m.Called(ctx, paymentID, success, lastError)
	return args.Error(0)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Retry(ctx context.Context, paymentID string, amount int64, currency string) error {
	args := m.Called(ctx, paymentID, amount, currency)
	return args.Error(0)
}
