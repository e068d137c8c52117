package services

import (
	"github.com/clearledger/backend/internal/models"
)

// ReportingStatus is the named aggregation rule for summaries: approved
// sessions report as completed. Counts fold the distinction on purpose,
// here and nowhere else, so the state machine keeps the real statuses.
func ReportingStatus(status string) string {
	if status == models.SessionApproved {
		return models.SessionCompleted
	}
	return status
}

// SummaryService rolls sessions up into totals for reporting. Pure
// aggregation over a loaded collection; no mutation, no queries.
type SummaryService struct{}

func NewSummaryService() *SummaryService {
	return &SummaryService{}
}

// Summarize aggregates the sessions that pass the filter.
func (s *SummaryService) Summarize(sessions []models.ReconciliationSession, filter *models.SummaryFilter) models.ReconciliationSummary {
	summary := models.ReconciliationSummary{}

	for _, session := range sessions {
		if !matchesFilter(&session, filter) {
			continue
		}

		summary.Total++
		switch ReportingStatus(session.Status) {
		case models.SessionPending:
			summary.PendingCount++
		case models.SessionCompleted:
			summary.CompletedCount++
		}
		summary.TotalDiscrepancy += session.DiscrepancyAmount
	}

	return summary
}

func matchesFilter(session *models.ReconciliationSession, filter *models.SummaryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.BankAccountID != "" && session.BankAccountID != filter.BankAccountID {
		return false
	}
	if !filter.PeriodStart.IsZero() && session.PeriodStart.Before(filter.PeriodStart) {
		return false
	}
	if !filter.PeriodEnd.IsZero() && session.PeriodEnd.After(filter.PeriodEnd) {
		return false
	}
	return true
}
