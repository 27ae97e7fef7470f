package transaction

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// Repository defines transaction persistence operations
type Repository interface {
	Create(ctx context.Context, txn *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// ListOpen returns not-fully-allocated transactions of one direction within a
	// workspace, the candidate pool for document-anchored matching
	ListOpen(ctx context.Context, workspaceID uuid.UUID, direction shared.Direction) ([]*Transaction, error)

	// UpdateReconciliation writes allocated/status using optimistic locking on the version column
	UpdateReconciliation(ctx context.Context, txn *Transaction) error

	// LockForUpdate acquires a pessimistic row lock for allocation processing
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrTransactionNotFound indicates a missing transaction
type ErrTransactionNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + e.TransactionID.String()
}
