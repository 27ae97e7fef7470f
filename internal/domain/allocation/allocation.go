package allocation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// Common errors
var (
	ErrInvalidAmount  = errors.New("allocation amount must be positive")
	ErrInvalidMethod  = errors.New("allocation method must be auto, ai_suggested or manual")
	ErrBadConfidence  = errors.New("allocation confidence must be between 0 and 100")
	ErrMissingParties = errors.New("allocation needs both a transaction and a document")
)

// PaymentAllocation ties a specific amount of one transaction to one document.
// A transaction may carry several allocations (split payment over multiple
// invoices) and a document may collect several (installments).
type PaymentAllocation struct {
	ID            uuid.UUID               `json:"id"`
	WorkspaceID   uuid.UUID               `json:"workspace_id"`
	TransactionID uuid.UUID               `json:"transaction_id"`
	DocumentID    uuid.UUID               `json:"document_id"`
	Amount        decimal.Decimal         `json:"amount"`
	Method        shared.AllocationMethod `json:"method"`
	Confidence    int                     `json:"confidence"`
	AllocatedAt   time.Time               `json:"allocated_at"`
}

// New creates an allocation record linking a transaction to a document
func New(workspaceID, transactionID, documentID uuid.UUID, amount decimal.Decimal, method shared.AllocationMethod, confidence int) (*PaymentAllocation, error) {
	if transactionID == uuid.Nil || documentID == uuid.Nil {
		return nil, ErrMissingParties
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	switch method {
	case shared.AllocationMethodAuto, shared.AllocationMethodAISuggested, shared.AllocationMethodManual:
	default:
		return nil, ErrInvalidMethod
	}
	if confidence < 0 || confidence > 100 {
		return nil, ErrBadConfidence
	}

	return &PaymentAllocation{
		ID:            uuid.New(),
		WorkspaceID:   workspaceID,
		TransactionID: transactionID,
		DocumentID:    documentID,
		Amount:        amount,
		Method:        method,
		Confidence:    confidence,
		AllocatedAt:   time.Now().UTC(),
	}, nil
}
