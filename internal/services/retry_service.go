package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/clearledger/backend/internal/audit"
	"github.com/clearledger/backend/internal/config"
	"github.com/clearledger/backend/internal/gateway"
	"github.com/clearledger/backend/internal/models"
)

const breakerStatusKey = "breaker:payment_gateway:status"

// PaymentRetryService orchestrates bounded retry attempts against the
// circuit breaker. Every real gateway call is reported to the breaker
// regardless of which payment triggered it; the breaker models the
// health of the channel, not of a single payment.
type PaymentRetryService struct {
	payments PaymentStore
	gateway  gateway.PaymentGateway
	breaker  *CircuitBreaker
	redis    *redis.Client
	audit    *audit.Logger
	cfg      *config.RetryConfig

	sleep func(ctx context.Context, d time.Duration) error
}

func NewPaymentRetryService(payments PaymentStore, gw gateway.PaymentGateway, breaker *CircuitBreaker, redisClient *redis.Client, cfg *config.RetryConfig) *PaymentRetryService {
	return &PaymentRetryService{
		payments: payments,
		gateway:  gw,
		breaker:  breaker,
		redis:    redisClient,
		audit:    audit.NewLogger(),
		cfg:      cfg,
		sleep:    sleepContext,
	}
}

// Retry attempts to recover one failed payment, making at most
// maxAttempts real gateway calls. A still-failing payment or a
// short-circuited breaker is an ordinary outcome, not an error; errors
// are reserved for ineligible input and caller cancellation.
func (s *PaymentRetryService) Retry(ctx context.Context, paymentID string, maxAttempts int) (*models.PaymentRetryOutcome, error) {
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.DefaultMaxAttempts
	}

	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentFailed {
		return nil, fmt.Errorf("payment %s is %s, only failed payments can be retried: %w",
			paymentID, payment.Status, ErrInvalidState)
	}

	outcome := &models.PaymentRetryOutcome{PaymentID: paymentID}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !s.breaker.Allow() {
			// Short-circuited: report "didn't even try" distinctly from
			// "tried and failed".
			outcome.Success = false
			outcome.LastError = ErrCircuitOpen.Error()
			log.Printf("[RETRY] Payment %s short-circuited after %d attempts", paymentID, outcome.Attempts)
			s.finish(ctx, outcome)
			return outcome, nil
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		callErr := s.gateway.Retry(attemptCtx, paymentID, payment.Amount, payment.Currency)
		cancel()
		outcome.Attempts = attempt

		if callErr == nil {
			s.breaker.RecordSuccess()
			outcome.Success = true
			outcome.LastError = ""
			if err := s.payments.MarkRetryResult(ctx, paymentID, true, ""); err != nil {
				log.Printf("[RETRY] Payment %s recovered but store update failed: %v", paymentID, err)
			}
			log.Printf("[RETRY] Payment %s recovered on attempt %d", paymentID, attempt)
			s.finish(ctx, outcome)
			return outcome, nil
		}

		if ctx.Err() != nil {
			// Caller cancelled mid-flight. Whether that counts against
			// the channel is a policy decision, not a guess.
			if s.cfg.CountCancellationAsFailure {
				s.breaker.RecordFailure()
			} else {
				s.breaker.RecordCancellation()
			}
			outcome.Success = false
			outcome.LastError = ctx.Err().Error()
			s.finish(context.Background(), outcome)
			return outcome, ctx.Err()
		}

		s.breaker.RecordFailure()
		gerr := &GatewayError{Err: callErr}
		outcome.LastError = gerr.Error()
		log.Printf("[RETRY] Payment %s attempt %d/%d failed: %v", paymentID, attempt, maxAttempts, callErr)

		if attempt < maxAttempts {
			backoff := s.cfg.BackoffBase << (attempt - 1)
			if err := s.sleep(ctx, backoff); err != nil {
				// Cancelled during backoff; the failed call was already
				// counted, nothing more to report to the breaker.
				s.finish(context.Background(), outcome)
				return outcome, err
			}
		}
	}

	if err := s.payments.MarkRetryResult(ctx, paymentID, false, outcome.LastError); err != nil {
		log.Printf("[RETRY] Payment %s exhausted and store update failed: %v", paymentID, err)
	}
	log.Printf("[RETRY] Payment %s exhausted %d attempts", paymentID, maxAttempts)
	s.finish(ctx, outcome)
	return outcome, nil
}

// BreakerStatus exposes the current breaker snapshot for display.
func (s *PaymentRetryService) BreakerStatus() BreakerStatus {
	return s.breaker.Status()
}

// finish records the outcome and refreshes the cached breaker snapshot
// that dashboards read. Cache trouble never fails the retry itself.
func (s *PaymentRetryService) finish(ctx context.Context, outcome *models.PaymentRetryOutcome) {
	s.audit.LogRetry(outcome.PaymentID, outcome.Attempts, outcome.Success, outcome.LastError)

	if s.redis != nil {
		status := s.breaker.Status()
		data, err := json.Marshal(status)
		if err == nil {
			if err := s.redis.Set(ctx, breakerStatusKey, data, time.Hour).Err(); err != nil {
				log.Printf("[RETRY] Failed to cache breaker status: %v", err)
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
