package models

import "time"

// SummaryFilter narrows which sessions a summary covers. Zero values
// mean no filtering on that axis.
type SummaryFilter struct {
	BankAccountID string
	PeriodStart   time.Time
	PeriodEnd     time.Time
}

// ReconciliationSummary rolls sessions up for reporting. CompletedCount
// folds approved sessions into completed (see services.ReportingStatus).
type ReconciliationSummary struct {
	Total            int   `json:"total"`
	PendingCount     int   `json:"pending_count"`
	CompletedCount   int   `json:"completed_count"`
	TotalDiscrepancy int64 `json:"total_discrepancy"`
}
