package shared

import (
	"errors"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidDirection    = errors.New("direction must be credit or debit")
	ErrInvalidDocumentKind = errors.New("document kind must be invoice or bill")
	ErrInvalidAnchorKind   = errors.New("anchor kind must be transaction or document")
	ErrCurrencyMismatch    = errors.New("transaction and document currencies differ")
)

// ErrInvalidScope indicates a caller omitted or garbled the user/account scope.
// Matching never runs across workspaces, so the scope is mandatory on every call.
type ErrInvalidScope struct {
	Field string
}

func (e ErrInvalidScope) Error() string {
	return "missing or ambiguous reconciliation scope: " + e.Field
}

// ErrValidation indicates an allocation request violates a balance or currency invariant
type ErrValidation struct {
	Field  string
	Reason string
}

func (e ErrValidation) Error() string {
	return "validation failed on " + e.Field + ": " + e.Reason
}

// ErrConcurrencyConflict indicates an optimistic write lost a race; callers may retry
type ErrConcurrencyConflict struct {
	Entity string
	ID     uuid.UUID
}

func (e ErrConcurrencyConflict) Error() string {
	return "concurrent modification detected for " + e.Entity + ": " + e.ID.String()
}
