package services

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers. State-machine and duplicate-match
// violations are never retried automatically.
var (
	ErrInvalidPeriod  = errors.New("period start must be before period end")
	ErrInvalidState   = errors.New("invalid state for requested transition")
	ErrDuplicateMatch = errors.New("payment already reconciled in another open session")
	ErrNotFound       = errors.New("not found")
	ErrCircuitOpen    = errors.New("circuit open")
)

// GatewayError wraps a downstream payment-gateway failure so the retry
// loop can report the provider detail without losing the cause.
type GatewayError struct {
	Code string
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("gateway error: %v", e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
