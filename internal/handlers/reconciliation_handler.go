package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clearledger/backend/internal/models"
	"github.com/clearledger/backend/internal/services"
)

type ReconciliationHandler struct {
	service   *services.ReconciliationService
	calc      *services.DiscrepancyCalculator
	summaries *services.SummaryService
	validator *services.ValidationHelper
}

func NewReconciliationHandler(service *services.ReconciliationService, calc *services.DiscrepancyCalculator, summaries *services.SummaryService) *ReconciliationHandler {
	return &ReconciliationHandler{
		service:   service,
		calc:      calc,
		summaries: summaries,
		validator: services.NewValidationHelper(),
	}
}

// StartSession opens a new reconciliation session
// @Summary Start reconciliation session
// @Description Open a pending reconciliation session for one bank account and statement period
// @Tags reconciliation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{bankAccountId=string,periodStart=string,periodEnd=string,openingBalance=int64,statementBalance=int64,notes=string,statementFileUrl=string} true "Session details"
// @Success 201 {object} models.ReconciliationSession
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /reconciliation/sessions [post]
func (h *ReconciliationHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BankAccountID    string `json:"bankAccountId" validate:"required"`
		PeriodStart      string `json:"periodStart" validate:"required"`
		PeriodEnd        string `json:"periodEnd" validate:"required"`
		OpeningBalance   int64  `json:"openingBalance"`
		StatementBalance int64  `json:"statementBalance"`
		Notes            string `json:"notes,omitempty" validate:"max=2000"`
		StatementFileURL string `json:"statementFileUrl,omitempty" validate:"omitempty,url"`
	}

	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	periodStart, err := time.Parse(time.RFC3339, req.PeriodStart)
	if err != nil {
		services.SendErrorResponse(w, "periodStart must be RFC 3339", http.StatusBadRequest, nil)
		return
	}
	periodEnd, err := time.Parse(time.RFC3339, req.PeriodEnd)
	if err != nil {
		services.SendErrorResponse(w, "periodEnd must be RFC 3339", http.StatusBadRequest, nil)
		return
	}

	session, err := h.service.StartSession(r.Context(), req.BankAccountID, periodStart, periodEnd,
		req.OpeningBalance, req.StatementBalance, req.Notes, req.StatementFileURL)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

// AddReconciledPayment matches a payment into a pending session
// @Summary Add reconciled payment
// @Description Match one recorded payment into a pending session; recomputes the discrepancy
// @Tags reconciliation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sessionId path int true "Session ID"
// @Param request body object{paymentId=string,notes=string} true "Payment match"
// @Success 200 {object} models.ReconciliationSession
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /reconciliation/sessions/{sessionId}/payments [post]
func (h *ReconciliationHandler) AddReconciledPayment(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		services.SendErrorResponse(w, "Invalid session id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		PaymentID string `json:"paymentId" validate:"required"`
		Notes     string `json:"notes,omitempty" validate:"max=2000"`
	}

	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	session, err := h.service.AddReconciledPayment(r.Context(), sessionID, req.PaymentID, req.Notes)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// CompleteSession moves a pending session to completed
// @Summary Complete session
// @Description Complete a pending session; the discrepancy is recorded but does not block completion
// @Tags reconciliation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sessionId path int true "Session ID"
// @Param request body object{notes=string} false "Completion notes"
// @Success 200 {object} models.ReconciliationSession
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /reconciliation/sessions/{sessionId}/complete [post]
func (h *ReconciliationHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CompleteSession)
}

// ApproveSession moves a completed session to approved
// @Summary Approve session
// @Description Approve a completed session; approval is final and releases the matched set for export
// @Tags reconciliation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sessionId path int true "Session ID"
// @Param request body object{notes=string} false "Approval notes"
// @Success 200 {object} models.ReconciliationSession
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /reconciliation/sessions/{sessionId}/approve [post]
func (h *ReconciliationHandler) ApproveSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ApproveSession)
}

func (h *ReconciliationHandler) transition(w http.ResponseWriter, r *http.Request, do func(ctx context.Context, sessionID int64, actor, notes string) (*models.ReconciliationSession, error)) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	sessionID, err := sessionIDParam(r)
	if err != nil {
		services.SendErrorResponse(w, "Invalid session id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		Notes string `json:"notes,omitempty" validate:"max=2000"`
	}
	if r.ContentLength > 0 {
		if err := services.DecodeJSONBody(w, r, &req); err != nil {
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
	}

	session, err := do(r.Context(), sessionID, userID, req.Notes)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// GetSession retrieves a session with its reconciled items
// @Summary Get session
// @Description Retrieve one reconciliation session with its matched payments
// @Tags reconciliation
// @Produce json
// @Security BearerAuth
// @Param sessionId path int true "Session ID"
// @Success 200 {object} models.ReconciliationSession
// @Failure 404 {object} services.ErrorResponse
// @Router /reconciliation/sessions/{sessionId} [get]
func (h *ReconciliationHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		services.SendErrorResponse(w, "Invalid session id", http.StatusBadRequest, nil)
		return
	}

	session, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// GetDiscrepancy recomputes the session discrepancy on demand
// @Summary Get discrepancy
// @Description Recompute the unexplained balance delta from current payment amounts
// @Tags reconciliation
// @Produce json
// @Security BearerAuth
// @Param sessionId path int true "Session ID"
// @Success 200 {object} object{sessionId=int64,discrepancyAmount=int64}
// @Failure 404 {object} services.ErrorResponse
// @Router /reconciliation/sessions/{sessionId}/discrepancy [get]
func (h *ReconciliationHandler) GetDiscrepancy(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		services.SendErrorResponse(w, "Invalid session id", http.StatusBadRequest, nil)
		return
	}

	session, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	amount, err := h.calc.Compute(r.Context(), session)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sessionId":         sessionID,
		"discrepancyAmount": amount,
	})
}

// GetSummary rolls sessions up for reporting
// @Summary Reconciliation summary
// @Description Aggregate sessions into totals; approved sessions report as completed
// @Tags reconciliation
// @Produce json
// @Security BearerAuth
// @Param bankAccountId query string false "Filter by bank account"
// @Param periodStart query string false "Filter by period start (RFC 3339)"
// @Param periodEnd query string false "Filter by period end (RFC 3339)"
// @Success 200 {object} models.ReconciliationSummary
// @Failure 500 {object} services.ErrorResponse
// @Router /reconciliation/summary [get]
func (h *ReconciliationHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	filter := &models.SummaryFilter{
		BankAccountID: r.URL.Query().Get("bankAccountId"),
	}
	if raw := r.URL.Query().Get("periodStart"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			services.SendErrorResponse(w, "periodStart must be RFC 3339", http.StatusBadRequest, nil)
			return
		}
		filter.PeriodStart = t
	}
	if raw := r.URL.Query().Get("periodEnd"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			services.SendErrorResponse(w, "periodEnd must be RFC 3339", http.StatusBadRequest, nil)
			return
		}
		filter.PeriodEnd = t
	}

	sessions, err := h.service.ListSessions(r.Context(), filter, 500)
	if err != nil {
		log.Printf("[RECONCILIATION] Failed to list sessions for summary: %v", err)
		services.SendErrorResponse(w, "Failed to load sessions", http.StatusInternalServerError, nil)
		return
	}

	summary := h.summaries.Summarize(sessions, filter)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func sessionIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "sessionId"), 10, 64)
}

// sendDomainError maps the error taxonomy onto HTTP statuses.
func sendDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, services.ErrInvalidPeriod):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrDuplicateMatch):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	default:
		log.Printf("[RECONCILIATION] Internal error: %v", err)
		services.SendErrorResponse(w, "Internal error", http.StatusInternalServerError, nil)
	}
}
