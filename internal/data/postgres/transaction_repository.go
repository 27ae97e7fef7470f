// Package postgres provides PostgreSQL implementations of the domain repositories.
// It handles all database operations while maintaining transaction safety and
// proper error handling for the reconciliation system.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/platform/persistence"
)

// TransactionRepository implements the transaction.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic operations
// across multiple repository calls. The returned repository will use the provided
// transaction for all database operations.
func (r *TransactionRepository) WithTx(tx pgx.Tx) transaction.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new bank transaction in the database
func (r *TransactionRepository) Create(ctx context.Context, txn *transaction.Transaction) error {
	query := `
		INSERT INTO bank_transactions (id, workspace_id, account_id, date, amount, direction, currency, description, reference, status, allocated, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.querier.Exec(ctx, query,
		txn.ID,
		txn.WorkspaceID,
		txn.AccountID,
		txn.Date,
		txn.Amount,
		txn.Direction,
		txn.Currency,
		txn.Description,
		txn.Reference,
		txn.Status,
		txn.Allocated,
		txn.Version,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction", "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `
		SELECT id, workspace_id, account_id, date, amount, direction, currency, description, reference, status, allocated, version, created_at, updated_at
		FROM bank_transactions
		WHERE id = $1
	`

	txn, err := r.scanOne(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return txn, nil
}

// ListOpen retrieves the not-fully-allocated transactions of one direction within
// a workspace, oldest first. This is the candidate pool for document-anchored scans.
func (r *TransactionRepository) ListOpen(ctx context.Context, workspaceID uuid.UUID, direction shared.Direction) ([]*transaction.Transaction, error) {
	query := `
		SELECT id, workspace_id, account_id, date, amount, direction, currency, description, reference, status, allocated, version, created_at, updated_at
		FROM bank_transactions
		WHERE workspace_id = $1 AND direction = $2 AND status != $3
		ORDER BY date ASC, created_at ASC
	`

	rows, err := r.querier.Query(ctx, query, workspaceID, direction, shared.ReconciliationStatusMatched)
	if err != nil {
		r.logger.Error("Failed to list open transactions", "workspace_id", workspaceID.String(), "error", err)
		return nil, fmt.Errorf("failed to list open transactions: %w", err)
	}
	defer rows.Close()

	var txns []*transaction.Transaction
	for rows.Next() {
		txn, err := r.scanOne(rows)
		if err != nil {
			r.logger.Error("Failed to scan transaction", "error", err)
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over transactions", "error", err)
		return nil, fmt.Errorf("error iterating over transactions: %w", err)
	}

	return txns, nil
}

// UpdateReconciliation writes the reconciliation fields (allocated, status) using
// optimistic locking. Returns ErrConcurrencyConflict if the row was modified
// between read and update.
func (r *TransactionRepository) UpdateReconciliation(ctx context.Context, txn *transaction.Transaction) error {
	query := `
		UPDATE bank_transactions
		SET status = $1, allocated = $2, version = $3, updated_at = $4
		WHERE id = $5 AND version = $6
	`

	result, err := r.querier.Exec(ctx, query,
		txn.Status,
		txn.Allocated,
		txn.Version,
		txn.UpdatedAt,
		txn.ID,
		txn.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update transaction reconciliation", "id", txn.ID.String(), "error", err)
		return fmt.Errorf("failed to update transaction reconciliation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrConcurrencyConflict{Entity: "transaction", ID: txn.ID}
	}

	return nil
}

// LockForUpdate obtains a pessimistic lock on the transaction and returns its
// current state. This should be used within a transaction when confirming or
// unlinking allocations.
func (r *TransactionRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `
		SELECT id, workspace_id, account_id, date, amount, direction, currency, description, reference, status, allocated, version, created_at, updated_at
		FROM bank_transactions
		WHERE id = $1
		FOR UPDATE
	`

	txn, err := r.scanOne(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to lock transaction for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock transaction for update: %w", err)
	}

	return txn, nil
}

func (r *TransactionRepository) scanOne(row pgx.Row) (*transaction.Transaction, error) {
	var txn transaction.Transaction
	err := row.Scan(
		&txn.ID,
		&txn.WorkspaceID,
		&txn.AccountID,
		&txn.Date,
		&txn.Amount,
		&txn.Direction,
		&txn.Currency,
		&txn.Description,
		&txn.Reference,
		&txn.Status,
		&txn.Allocated,
		&txn.Version,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
