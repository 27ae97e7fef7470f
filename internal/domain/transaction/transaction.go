package transaction

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// Common errors
var (
	ErrInvalidAmount         = errors.New("transaction amount must be positive")
	ErrInvalidCurrencyFormat = errors.New("currency must be a 3-letter code")
	ErrEmptyDescription      = errors.New("transaction description cannot be empty")
	ErrOverAllocated         = errors.New("allocation exceeds the transaction's unallocated remainder")
)

// matchedTolerance is the residual below which a transaction counts as fully allocated
var matchedTolerance = decimal.New(1, -2) // $0.01

// Transaction is a normalized bank transaction as delivered by the import
// collaborator. Everything except the reconciliation fields (Status, Allocated,
// Version) is immutable once created.
type Transaction struct {
	ID          uuid.UUID                   `json:"id"`
	WorkspaceID uuid.UUID                   `json:"workspace_id"`
	AccountID   uuid.UUID                   `json:"account_id"`
	Date        time.Time                   `json:"date"`
	Amount      decimal.Decimal             `json:"amount"` // Always positive; Direction carries the sign
	Direction   shared.Direction            `json:"direction"`
	Currency    string                      `json:"currency"`
	Description string                      `json:"description"`
	Reference   string                      `json:"reference,omitempty"` // Extracted payment reference, when present
	Status      shared.ReconciliationStatus `json:"status"`
	Allocated   decimal.Decimal             `json:"allocated"` // Running total of live allocations
	Version     int                         `json:"version"`   // For optimistic locking
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// New creates an unmatched transaction with the given attributes
func New(workspaceID, accountID uuid.UUID, date time.Time, amount decimal.Decimal, direction shared.Direction, currency, description, reference string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if direction != shared.DirectionCredit && direction != shared.DirectionDebit {
		return nil, shared.ErrInvalidDirection
	}
	if len(currency) != 3 {
		return nil, ErrInvalidCurrencyFormat
	}
	if description == "" {
		return nil, ErrEmptyDescription
	}

	now := time.Now().UTC()
	return &Transaction{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		AccountID:   accountID,
		Date:        date,
		Amount:      amount,
		Direction:   direction,
		Currency:    currency,
		Description: description,
		Reference:   reference,
		Status:      shared.ReconciliationStatusUnmatched,
		Allocated:   decimal.Zero,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Unallocated returns the amount of this transaction not yet tied to a document
func (t *Transaction) Unallocated() decimal.Decimal {
	return t.Amount.Sub(t.Allocated)
}

// FullyAllocated reports whether the unallocated remainder is at or below one cent
func (t *Transaction) FullyAllocated() bool {
	return t.Unallocated().LessThanOrEqual(matchedTolerance)
}

// ApplyAllocation registers an allocation amount against this transaction,
// recomputing its status and bumping the lock version
func (t *Transaction) ApplyAllocation(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(t.Unallocated()) {
		return ErrOverAllocated
	}

	t.Allocated = t.Allocated.Add(amount)
	t.refreshStatus()
	t.Version++
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// ReverseAllocation undoes a previously applied allocation amount
func (t *Transaction) ReverseAllocation(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(t.Allocated) {
		return ErrOverAllocated
	}

	t.Allocated = t.Allocated.Sub(amount)
	t.refreshStatus()
	t.Version++
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *Transaction) refreshStatus() {
	switch {
	case t.Allocated.IsZero():
		t.Status = shared.ReconciliationStatusUnmatched
	case t.FullyAllocated():
		t.Status = shared.ReconciliationStatusMatched
	default:
		t.Status = shared.ReconciliationStatusPartial
	}
}
