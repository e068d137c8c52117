package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clearledger/backend/internal/services"
)

type RetryHandler struct {
	service   *services.PaymentRetryService
	validator *services.ValidationHelper
}

func NewRetryHandler(service *services.PaymentRetryService) *RetryHandler {
	return &RetryHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// RetryPayment retries one failed payment through the circuit breaker
// @Summary Retry failed payment
// @Description Attempt to recover a failed payment with bounded retries; a still-failing payment is an ordinary outcome
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param paymentId path string true "Payment ID"
// @Param request body object{maxAttempts=int} false "Retry options"
// @Success 200 {object} models.PaymentRetryOutcome
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /payments/{paymentId}/retry [post]
func (h *RetryHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	paymentID := chi.URLParam(r, "paymentId")
	if paymentID == "" {
		services.SendErrorResponse(w, "paymentId is required", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		MaxAttempts int `json:"maxAttempts,omitempty" validate:"omitempty,min=1,max=10"`
	}
	if r.ContentLength > 0 {
		if err := services.DecodeJSONBody(w, r, &req); err != nil {
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
		if err := h.validator.ValidateStruct(&req); err != nil {
			services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
			return
		}
	}

	outcome, err := h.service.Retry(r.Context(), paymentID, req.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		case errors.Is(err, services.ErrInvalidState):
			services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Client went away; nothing useful left to write.
			log.Printf("[RETRY] Request for payment %s cancelled by caller", paymentID)
		default:
			log.Printf("[RETRY] Internal error for payment %s: %v", paymentID, err)
			services.SendErrorResponse(w, "Internal error", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcome)
}

// GetBreakerStatus exposes the circuit-breaker snapshot for display
// @Summary Circuit breaker status
// @Description Current payment-channel breaker state for operator dashboards
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.BreakerStatus
// @Router /payments/retry/circuit [get]
func (h *RetryHandler) GetBreakerStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.service.BreakerStatus())
}
