package document

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// Repository defines document persistence operations
type Repository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)

	// ListOpen returns documents of one kind with a positive remainder within a
	// workspace, the candidate pool for transaction-anchored matching
	ListOpen(ctx context.Context, workspaceID uuid.UUID, kind shared.DocumentKind) ([]*Document, error)

	// UpdateSettlement writes amount_paid/amount_remaining/payment_status using
	// optimistic locking on the version column
	UpdateSettlement(ctx context.Context, doc *Document) error

	// LockForUpdate acquires a pessimistic row lock for allocation processing
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Document, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrDocumentNotFound indicates a missing document
type ErrDocumentNotFound struct {
	DocumentID uuid.UUID
}

func (e ErrDocumentNotFound) Error() string {
	return "document not found: " + e.DocumentID.String()
}
