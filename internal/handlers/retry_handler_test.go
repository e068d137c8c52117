package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/clearledger/backend/internal/config"
	"github.com/clearledger/backend/internal/models"
	"github.com/clearledger/backend/internal/services"
)

type stubGateway struct {
	err   error
	calls int
}

func (g *stubGateway) Retry(ctx context.Context, paymentID string, amount int64, currency string) error {
	g.calls++
	return g.err
}

func newRetryRouter(db *sql.DB, gw *stubGateway) *chi.Mux {
	store := services.NewPostgresPaymentStore(db)
	breaker := services.NewCircuitBreaker(&config.BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         time.Minute,
		MaxCooldown:      8 * time.Minute,
	})
	cfg := &config.RetryConfig{
		DefaultMaxAttempts: 3,
		AttemptTimeout:     time.Second,
		BackoffBase:        time.Millisecond,
	}
	handler := NewRetryHandler(services.NewPaymentRetryService(store, gw, breaker, nil, cfg))

	r := chi.NewRouter()
	r.Use(withUser("operator@clearledger"))
	r.Post("/payments/{paymentId}/retry", handler.RetryPayment)
	r.Get("/payments/retry/circuit", handler.GetBreakerStatus)
	return r
}

func paymentRow(status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "payment_id", "bank_account_id", "amount", "currency", "status", "last_error", "created_at", "updated_at",
	}).AddRow(int64(1), "pay-1", "acct-1", int64(2500), "USD", status, "gateway timeout", now, now)
}

func TestRetryHandler_RetryPayment(t *testing.T) {
	t.Run("failed payment recovers", func(t *testing.T) {
		db, mockDB, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		gw := &stubGateway{}
		router := newRetryRouter(db, gw)

		mockDB.ExpectQuery("FROM payments").
			WithArgs("pay-1").
			WillReturnRows(paymentRow(models.PaymentFailed))
		mockDB.ExpectExec("UPDATE payments").
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := httptest.NewRequest("POST", "/payments/pay-1/retry", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var outcome models.PaymentRetryOutcome
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
		assert.True(t, outcome.Success)
		assert.Equal(t, 1, outcome.Attempts)
		assert.Equal(t, 1, gw.calls)
	})

	t.Run("unknown payment", func(t *testing.T) {
		db, mockDB, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		router := newRetryRouter(db, &stubGateway{})

		mockDB.ExpectQuery("FROM payments").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		req := httptest.NewRequest("POST", "/payments/ghost/retry", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("completed payment conflicts", func(t *testing.T) {
		db, mockDB, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		gw := &stubGateway{}
		router := newRetryRouter(db, gw)

		mockDB.ExpectQuery("FROM payments").
			WithArgs("pay-1").
			WillReturnRows(paymentRow(models.PaymentCompleted))

		req := httptest.NewRequest("POST", "/payments/pay-1/retry", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, 0, gw.calls)
	})

	t.Run("maxAttempts out of range", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		router := newRetryRouter(db, &stubGateway{})

		req := httptest.NewRequest("POST", "/payments/pay-1/retry", strings.NewReader(`{"maxAttempts": 50}`))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		store := services.NewPostgresPaymentStore(db)
		breaker := services.NewCircuitBreaker(&config.BreakerConfig{FailureThreshold: 5, Cooldown: time.Minute, MaxCooldown: 8 * time.Minute})
		cfg := &config.RetryConfig{DefaultMaxAttempts: 3, AttemptTimeout: time.Second, BackoffBase: time.Millisecond}
		handler := NewRetryHandler(services.NewPaymentRetryService(store, &stubGateway{}, breaker, nil, cfg))

		r := chi.NewRouter()
		r.Post("/payments/{paymentId}/retry", handler.RetryPayment)

		req := httptest.NewRequest("POST", "/payments/pay-1/retry", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRetryHandler_GetBreakerStatus(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	router := newRetryRouter(db, &stubGateway{})

	req := httptest.NewRequest("GET", "/payments/retry/circuit", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var status services.BreakerStatus
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, services.BreakerClosed, status.State)
	assert.Equal(t, 0, status.FailureCount)
}
