package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount is a validation failure; callers re-prompt and
	// nothing is mutated.
	ErrInvalidAmount = errors.New("amount must be a positive number")

	// ErrInvalidToken rejects an empty credential before any side effect.
	ErrInvalidToken = errors.New("token must not be empty")

	// ErrInvalidInput is a generic validation failure for non-numeric fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientFunds is the business-rule failure for debits and
	// purchases; the ledger is left unchanged.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound covers missing rows and ownership misses alike, so a
	// caller cannot distinguish another user's instance from a
	// nonexistent one.
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition guards one-shot state machines, e.g. approving
	// an already-resolved payment.
	ErrIllegalTransition = errors.New("illegal state transition")
)

const maxDiagnosticLen = 200

// ProvisioningError is the catch-all surfaced when instance creation fails
// after the purchase debit. The account stays debited; the ledger mutation
// is not compensated, so the truncated diagnostic is all the caller gets.
type ProvisioningError struct {
	Stage string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed at %s: %s", e.Stage, truncate(e.Err.Error(), maxDiagnosticLen))
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
