package allocation

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines payment allocation persistence operations
type Repository interface {
	Create(ctx context.Context, alloc *PaymentAllocation) error
	GetByID(ctx context.Context, id uuid.UUID) (*PaymentAllocation, error)

	// Find returns the live allocation for an exact (transaction, document, amount)
	// tuple, or nil when none exists. Used for the idempotent-confirm check.
	Find(ctx context.Context, transactionID, documentID uuid.UUID, amount decimal.Decimal) (*PaymentAllocation, error)

	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*PaymentAllocation, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*PaymentAllocation, error)

	// ListRecentByCounterparty returns the newest allocations whose documents
	// belong to the named counterparty. Feeds investigation requests with
	// precedent for how this counterparty settled before.
	ListRecentByCounterparty(ctx context.Context, workspaceID uuid.UUID, counterparty string, limit int) ([]*PaymentAllocation, error)

	// Delete removes an allocation row as part of an unlink; audit history of the
	// linkage survives in the decision store
	Delete(ctx context.Context, id uuid.UUID) error
	WithTx(tx pgx.Tx) Repository
}

// ErrAllocationNotFound indicates a missing allocation, addressed either by
// its own ID or by the (transaction, document) pair
type ErrAllocationNotFound struct {
	AllocationID  uuid.UUID
	TransactionID uuid.UUID
	DocumentID    uuid.UUID
}

func (e ErrAllocationNotFound) Error() string {
	if e.AllocationID != uuid.Nil {
		return "allocation not found: " + e.AllocationID.String()
	}
	return "allocation not found for transaction " + e.TransactionID.String() + " and document " + e.DocumentID.String()
}
