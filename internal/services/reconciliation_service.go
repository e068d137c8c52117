package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"

	"github.com/clearledger/backend/internal/audit"
	"github.com/clearledger/backend/internal/models"
)

// ReconciliationService owns the session lifecycle. Transitions are
// serialized per session with row locks plus a status-guarded UPDATE, so
// two concurrent calls for the same transition cannot both succeed.
type ReconciliationService struct {
	db       *sql.DB
	redis    *redis.Client
	payments PaymentStore
	export   *SettlementExportService
	audit    *audit.Logger
}

func NewReconciliationService(db *sql.DB, redisClient *redis.Client, payments PaymentStore, export *SettlementExportService) *ReconciliationService {
	return &ReconciliationService{
		db:       db,
		redis:    redisClient,
		payments: payments,
		export:   export,
		audit:    audit.NewLogger(),
	}
}

// StartSession opens a new pending session for one account and period.
func (s *ReconciliationService) StartSession(ctx context.Context, bankAccountID string, periodStart, periodEnd time.Time, openingBalance, statementBalance int64, notes, statementFileURL string) (*models.ReconciliationSession, error) {
	if !periodStart.Before(periodEnd) {
		return nil, ErrInvalidPeriod
	}

	// Until payments are matched the whole statement movement is
	// unexplained.
	discrepancy := statementBalance - openingBalance

	session := &models.ReconciliationSession{
		BankAccountID:     bankAccountID,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		OpeningBalance:    openingBalance,
		StatementBalance:  statementBalance,
		Status:            models.SessionPending,
		DiscrepancyAmount: discrepancy,
		Notes:             notes,
		StatementFileURL:  statementFileURL,
		ReconciledItems:   []models.ReconciledItem{},
	}

	err := s.db.QueryRowContext(ctx, `
        INSERT INTO reconciliation_sessions
        (bank_account_id, period_start, period_end, opening_balance, statement_balance, status, discrepancy_amount, notes, statement_file_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
        RETURNING id, created_at, updated_at
    `, bankAccountID, periodStart, periodEnd, openingBalance, statementBalance,
		models.SessionPending, discrepancy, notes, statementFileURL,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		log.Printf("[RECONCILIATION] Failed to start session for account %s: %v", bankAccountID, err)
		return nil, err
	}

	log.Printf("[RECONCILIATION] Session %d started for account %s, period %s - %s",
		session.ID, bankAccountID, periodStart.Format(time.DateOnly), periodEnd.Format(time.DateOnly))
	s.audit.LogTransition(session.ID, bankAccountID, "", models.SessionPending, "")
	return session, nil
}

// AddReconciledPayment matches one payment into a pending session. The
// duplicate-match check and the status check run inside the same
// transaction as the insert, under the session row lock.
func (s *ReconciliationService) AddReconciledPayment(ctx context.Context, sessionID int64, paymentID, notes string) (*models.ReconciliationSession, error) {
	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	session, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status != models.SessionPending {
		return nil, fmt.Errorf("session %d is %s: %w", sessionID, session.Status, ErrInvalidState)
	}

	var claimed bool
	err = tx.QueryRowContext(ctx, `
        SELECT EXISTS(
            SELECT 1 FROM reconciled_items ri
            JOIN reconciliation_sessions rs ON ri.session_id = rs.id
            WHERE ri.payment_id = $1 AND rs.bank_account_id = $2 AND rs.status <> $3
        )
    `, paymentID, session.BankAccountID, models.SessionApproved).Scan(&claimed)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, fmt.Errorf("payment %s on account %s: %w", paymentID, session.BankAccountID, ErrDuplicateMatch)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO reconciled_items (session_id, payment_id, notes, created_at)
        VALUES ($1, $2, $3, NOW())
    `, sessionID, paymentID, notes)
	if err != nil {
		// Two pending sessions can race past the EXISTS check; the loser
		// hits the idx_items_open_payment unique index instead.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("payment %s on account %s: %w", paymentID, session.BankAccountID, ErrDuplicateMatch)
		}
		return nil, err
	}

	// Recompute the discrepancy with the new item in place, inside the
	// same transaction so the stored amount never drifts from its inputs.
	var matched int64
	err = tx.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(p.amount), 0)
        FROM reconciled_items ri
        JOIN payments p ON p.payment_id = ri.payment_id
        WHERE ri.session_id = $1
    `, sessionID).Scan(&matched)
	if err != nil {
		return nil, err
	}

	discrepancy := session.StatementBalance - session.OpeningBalance - matched
	_, err = tx.ExecContext(ctx, `
        UPDATE reconciliation_sessions SET discrepancy_amount = $1, updated_at = NOW() WHERE id = $2
    `, discrepancy, sessionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[RECONCILIATION] Session %d matched payment %s (%d %s), discrepancy now %d",
		sessionID, paymentID, payment.Amount, payment.Currency, discrepancy)
	s.audit.LogMatch(sessionID, session.BankAccountID, paymentID, discrepancy)

	return s.GetSession(ctx, sessionID)
}

// CompleteSession moves a pending session to completed. A non-zero
// discrepancy does not block completion; operators are not held hostage
// to bank-feed lag.
func (s *ReconciliationService) CompleteSession(ctx context.Context, sessionID int64, completedBy, notes string) (*models.ReconciliationSession, error) {
	session, err := s.transition(ctx, sessionID, models.SessionPending, models.SessionCompleted, completedBy, notes)
	if err != nil {
		return nil, err
	}

	if session.DiscrepancyAmount != 0 {
		log.Printf("[RECONCILIATION] Session %d completed with unexplained discrepancy %d",
			sessionID, session.DiscrepancyAmount)
	}
	return session, nil
}

// ApproveSession moves a completed session to approved, the durability
// boundary. The session and its matched payments are settled from here
// on; the matched set is released to the settlement export queue.
func (s *ReconciliationService) ApproveSession(ctx context.Context, sessionID int64, approvedBy, notes string) (*models.ReconciliationSession, error) {
	session, err := s.transition(ctx, sessionID, models.SessionCompleted, models.SessionApproved, approvedBy, notes)
	if err != nil {
		return nil, err
	}

	if err := s.queueForExport(ctx, session); err != nil {
		log.Printf("[RECONCILIATION] Failed to queue session %d for export: %v", sessionID, err)
	}
	go s.exportApproved(session)

	return session, nil
}

// transition performs one forward move of the state machine. The row
// lock makes the status read atomic with the check; the status-guarded
// UPDATE makes a lost race observable as zero rows affected.
func (s *ReconciliationService) transition(ctx context.Context, sessionID int64, from, to, actor, notes string) (*models.ReconciliationSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	session, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status != from {
		return nil, fmt.Errorf("session %d is %s, wanted %s: %w", sessionID, session.Status, from, ErrInvalidState)
	}

	var result sql.Result
	switch to {
	case models.SessionCompleted:
		result, err = tx.ExecContext(ctx, `
            UPDATE reconciliation_sessions
            SET status = $1, completed_by = $2, completed_at = NOW(),
                notes = CONCAT_WS(E'\n', NULLIF(notes, ''), NULLIF($3, '')),
                updated_at = NOW()
            WHERE id = $4 AND status = $5
        `, to, actor, notes, sessionID, from)
	case models.SessionApproved:
		result, err = tx.ExecContext(ctx, `
            UPDATE reconciliation_sessions
            SET status = $1, approved_by = $2, approved_at = NOW(),
                notes = CONCAT_WS(E'\n', NULLIF(notes, ''), NULLIF($3, '')),
                updated_at = NOW()
            WHERE id = $4 AND status = $5
        `, to, actor, notes, sessionID, from)
		if err == nil {
			// Release the items' open-session claim; the partial unique
			// index only guards unsettled matches.
			_, err = tx.ExecContext(ctx, `
                UPDATE reconciled_items SET settled = TRUE WHERE session_id = $1
            `, sessionID)
		}
	default:
		return nil, fmt.Errorf("transition to %s: %w", to, ErrInvalidState)
	}
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("session %d lost transition race to %s: %w", sessionID, to, ErrInvalidState)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[RECONCILIATION] Session %d %s -> %s by %s", sessionID, from, to, actor)
	s.audit.LogTransition(sessionID, session.BankAccountID, from, to, actor)

	return s.GetSession(ctx, sessionID)
}

// GetSession loads a session with its reconciled items in matching order.
func (s *ReconciliationService) GetSession(ctx context.Context, sessionID int64) (*models.ReconciliationSession, error) {
	session := &models.ReconciliationSession{}
	var notes, fileURL, completedBy, approvedBy sql.NullString
	var completedAt, approvedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
        SELECT id, bank_account_id, period_start, period_end, opening_balance, statement_balance,
               status, discrepancy_amount, notes, statement_file_url,
               completed_by, completed_at, approved_by, approved_at, created_at, updated_at
        FROM reconciliation_sessions
        WHERE id = $1
    `, sessionID).Scan(
		&session.ID, &session.BankAccountID, &session.PeriodStart, &session.PeriodEnd,
		&session.OpeningBalance, &session.StatementBalance, &session.Status,
		&session.DiscrepancyAmount, &notes, &fileURL,
		&completedBy, &completedAt, &approvedBy, &approvedAt,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	session.Notes = notes.String
	session.StatementFileURL = fileURL.String
	session.CompletedBy = completedBy.String
	session.ApprovedBy = approvedBy.String
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	if approvedAt.Valid {
		session.ApprovedAt = &approvedAt.Time
	}

	items, err := s.fetchItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.ReconciledItems = items

	return session, nil
}

// ListSessions returns sessions matching the filter, newest first.
func (s *ReconciliationService) ListSessions(ctx context.Context, filter *models.SummaryFilter, limit int) ([]models.ReconciliationSession, error) {
	query := `
        SELECT id, bank_account_id, period_start, period_end, opening_balance, statement_balance,
               status, discrepancy_amount, created_at, updated_at
        FROM reconciliation_sessions
    `
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter != nil {
		if filter.BankAccountID != "" {
			conditions = append(conditions, fmt.Sprintf("bank_account_id = $%d", argIndex))
			args = append(args, filter.BankAccountID)
			argIndex++
		}
		if !filter.PeriodStart.IsZero() {
			conditions = append(conditions, fmt.Sprintf("period_start >= $%d", argIndex))
			args = append(args, filter.PeriodStart)
			argIndex++
		}
		if !filter.PeriodEnd.IsZero() {
			conditions = append(conditions, fmt.Sprintf("period_end <= $%d", argIndex))
			args = append(args, filter.PeriodEnd)
			argIndex++
		}
	}

	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.ReconciliationSession{}
	for rows.Next() {
		var session models.ReconciliationSession
		err := rows.Scan(
			&session.ID, &session.BankAccountID, &session.PeriodStart, &session.PeriodEnd,
			&session.OpeningBalance, &session.StatementBalance, &session.Status,
			&session.DiscrepancyAmount, &session.CreatedAt, &session.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

func (s *ReconciliationService) fetchItems(ctx context.Context, sessionID int64) ([]models.ReconciledItem, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, session_id, payment_id, COALESCE(notes, ''), created_at
        FROM reconciled_items
        WHERE session_id = $1
        ORDER BY id
    `, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.ReconciledItem{}
	for rows.Next() {
		var item models.ReconciledItem
		if err := rows.Scan(&item.ID, &item.SessionID, &item.PaymentID, &item.Notes, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func lockSession(ctx context.Context, tx *sql.Tx, sessionID int64) (*models.ReconciliationSession, error) {
	session := &models.ReconciliationSession{}
	err := tx.QueryRowContext(ctx, `
        SELECT id, bank_account_id, opening_balance, statement_balance, status, discrepancy_amount
        FROM reconciliation_sessions
        WHERE id = $1
        FOR UPDATE
    `, sessionID).Scan(
		&session.ID, &session.BankAccountID, &session.OpeningBalance,
		&session.StatementBalance, &session.Status, &session.DiscrepancyAmount,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ReconciliationService) queueForExport(ctx context.Context, session *models.ReconciliationSession) error {
	if s.redis == nil {
		return nil
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return s.redis.RPush(ctx, "settlement_export_queue", data).Err()
}

func (s *ReconciliationService) exportApproved(session *models.ReconciliationSession) {
	if s.export == nil {
		return
	}

	ctx := context.Background()
	for _, item := range session.ReconciledItems {
		payment, err := s.payments.GetPayment(ctx, item.PaymentID)
		if err != nil {
			log.Printf("[EXPORT] Skipping payment %s for session %d: %v", item.PaymentID, session.ID, err)
			continue
		}

		doc, err := s.export.BuildPacs008(session, payment)
		if err != nil {
			log.Printf("[EXPORT] Failed to build message for payment %s: %v", item.PaymentID, err)
			continue
		}

		if err := s.export.SendToSettlement(doc); err != nil {
			log.Printf("[EXPORT] Failed to send payment %s to settlement: %v", item.PaymentID, err)
			continue
		}

		log.Printf("[EXPORT] Session %d payment %s exported", session.ID, item.PaymentID)
	}
}
