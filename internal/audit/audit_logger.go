package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	SessionID     int64     `json:"session_id,omitempty"`
	PaymentID     string    `json:"payment_id,omitempty"`
	BankAccountID string    `json:"bank_account_id,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// Logger emits structured audit events for every session transition and
// retry outcome. Approval is the durability boundary, so the trail must
// show who moved each session and when.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogTransition(sessionID int64, bankAccountID, from, to, actor string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "SESSION_TRANSITION",
		SessionID:     sessionID,
		BankAccountID: bankAccountID,
		Actor:         actor,
		Status:        to,
		Details:       map[string]string{"from": from, "to": to},
	})
}

func (a *Logger) LogMatch(sessionID int64, bankAccountID, paymentID string, discrepancy int64) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "PAYMENT_MATCHED",
		SessionID:     sessionID,
		BankAccountID: bankAccountID,
		PaymentID:     paymentID,
		Status:        "SUCCESS",
		Details:       map[string]int64{"discrepancy_amount": discrepancy},
	})
}

func (a *Logger) LogRetry(paymentID string, attempts int, success bool, lastError string) {
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "PAYMENT_RETRY",
		PaymentID: paymentID,
		Status:    status,
		Details: map[string]any{
			"attempts":   attempts,
			"last_error": lastError,
		},
	})
}

func (a *Logger) LogError(sessionID int64, paymentID string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "ERROR",
		SessionID: sessionID,
		PaymentID: paymentID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
