package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/domain/allocation"
	"github.com/reconcilia-matching-engine/internal/platform/persistence"
)

// AllocationRepository implements the allocation.Repository interface for PostgreSQL
type AllocationRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewAllocationRepository creates a new PostgreSQL allocation repository
func NewAllocationRepository(logger *slog.Logger, db *persistence.PostgresDB) allocation.Repository {
	return &AllocationRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so allocation rows are written
// atomically with the balance updates on both sides of the link
func (r *AllocationRepository) WithTx(tx pgx.Tx) allocation.Repository {
	return &AllocationRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new payment allocation linking a transaction to a document
func (r *AllocationRepository) Create(ctx context.Context, alloc *allocation.PaymentAllocation) error {
	query := `
		INSERT INTO payment_allocations (id, workspace_id, transaction_id, document_id, amount, method, confidence, allocated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		alloc.ID,
		alloc.WorkspaceID,
		alloc.TransactionID,
		alloc.DocumentID,
		alloc.Amount,
		alloc.Method,
		alloc.Confidence,
		alloc.AllocatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create allocation", "error", err)
		return fmt.Errorf("failed to create allocation: %w", err)
	}

	return nil
}

// GetByID retrieves an allocation by its ID
func (r *AllocationRepository) GetByID(ctx context.Context, id uuid.UUID) (*allocation.PaymentAllocation, error) {
	query := `
		SELECT id, workspace_id, transaction_id, document_id, amount, method, confidence, allocated_at
		FROM payment_allocations
		WHERE id = $1
	`

	alloc, err := r.scanOne(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, allocation.ErrAllocationNotFound{AllocationID: id}
		}
		r.logger.Error("Failed to get allocation", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}

	return alloc, nil
}

// Find retrieves the allocation for an exact (transaction, document, amount)
// tuple. Returns nil, nil when no such allocation exists; this backs the
// idempotent-confirm check, so absence is not an error.
func (r *AllocationRepository) Find(ctx context.Context, transactionID, documentID uuid.UUID, amount decimal.Decimal) (*allocation.PaymentAllocation, error) {
	query := `
		SELECT id, workspace_id, transaction_id, document_id, amount, method, confidence, allocated_at
		FROM payment_allocations
		WHERE transaction_id = $1 AND document_id = $2 AND amount = $3
	`

	alloc, err := r.scanOne(r.querier.QueryRow(ctx, query, transactionID, documentID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to find allocation",
			"transaction_id", transactionID.String(),
			"document_id", documentID.String(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to find allocation: %w", err)
	}

	return alloc, nil
}

// ListByTransaction retrieves every allocation carried by one transaction
func (r *AllocationRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*allocation.PaymentAllocation, error) {
	query := `
		SELECT id, workspace_id, transaction_id, document_id, amount, method, confidence, allocated_at
		FROM payment_allocations
		WHERE transaction_id = $1
		ORDER BY allocated_at ASC
	`

	return r.list(ctx, query, transactionID)
}

// ListByDocument retrieves every allocation collected by one document
func (r *AllocationRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*allocation.PaymentAllocation, error) {
	query := `
		SELECT id, workspace_id, transaction_id, document_id, amount, method, confidence, allocated_at
		FROM payment_allocations
		WHERE document_id = $1
		ORDER BY allocated_at ASC
	`

	return r.list(ctx, query, documentID)
}

// ListRecentByCounterparty retrieves the newest allocations settling documents
// of one counterparty, matched case-insensitively on the stored name
func (r *AllocationRepository) ListRecentByCounterparty(ctx context.Context, workspaceID uuid.UUID, counterparty string, limit int) ([]*allocation.PaymentAllocation, error) {
	query := `
		SELECT pa.id, pa.workspace_id, pa.transaction_id, pa.document_id, pa.amount, pa.method, pa.confidence, pa.allocated_at
		FROM payment_allocations pa
		JOIN documents d ON d.id = pa.document_id
		WHERE pa.workspace_id = $1 AND d.counterparty_name ILIKE $2
		ORDER BY pa.allocated_at DESC
		LIMIT $3
	`

	return r.list(ctx, query, workspaceID, counterparty, limit)
}

// Delete removes an allocation row as part of an unlink. The decision audit
// trail lives in the decision store and survives the delete.
func (r *AllocationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM payment_allocations
		WHERE id = $1
	`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete allocation", "id", id.String(), "error", err)
		return fmt.Errorf("failed to delete allocation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return allocation.ErrAllocationNotFound{AllocationID: id}
	}

	return nil
}

func (r *AllocationRepository) list(ctx context.Context, query string, args ...any) ([]*allocation.PaymentAllocation, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list allocations", "error", err)
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer rows.Close()

	var allocs []*allocation.PaymentAllocation
	for rows.Next() {
		alloc, err := r.scanOne(rows)
		if err != nil {
			r.logger.Error("Failed to scan allocation", "error", err)
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocs = append(allocs, alloc)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over allocations", "error", err)
		return nil, fmt.Errorf("error iterating over allocations: %w", err)
	}

	return allocs, nil
}

func (r *AllocationRepository) scanOne(row pgx.Row) (*allocation.PaymentAllocation, error) {
	var alloc allocation.PaymentAllocation
	err := row.Scan(
		&alloc.ID,
		&alloc.WorkspaceID,
		&alloc.TransactionID,
		&alloc.DocumentID,
		&alloc.Amount,
		&alloc.Method,
		&alloc.Confidence,
		&alloc.AllocatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}
