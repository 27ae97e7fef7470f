package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/platform/persistence"
)

// DocumentRepository implements the document.Repository interface for PostgreSQL
type DocumentRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewDocumentRepository creates a new PostgreSQL document repository
func NewDocumentRepository(logger *slog.Logger, db *persistence.PostgresDB) document.Repository {
	return &DocumentRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *DocumentRepository) WithTx(tx pgx.Tx) document.Repository {
	return &DocumentRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new document in the database
func (r *DocumentRepository) Create(ctx context.Context, doc *document.Document) error {
	query := `
		INSERT INTO documents (id, workspace_id, kind, document_number, counterparty_name, total, currency, issue_date, due_date, amount_paid, amount_remaining, payment_status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.querier.Exec(ctx, query,
		doc.ID,
		doc.WorkspaceID,
		doc.Kind,
		doc.DocumentNumber,
		doc.CounterpartyName,
		doc.Total,
		doc.Currency,
		doc.IssueDate,
		doc.DueDate,
		doc.AmountPaid,
		doc.AmountRemaining,
		doc.PaymentStatus,
		doc.Version,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create document", "error", err)
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// GetByID retrieves a document by its ID
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	query := `
		SELECT id, workspace_id, kind, document_number, counterparty_name, total, currency, issue_date, due_date, amount_paid, amount_remaining, payment_status, version, created_at, updated_at
		FROM documents
		WHERE id = $1
	`

	doc, err := r.scanOne(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, document.ErrDocumentNotFound{DocumentID: id}
		}
		r.logger.Error("Failed to get document", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// ListOpen retrieves the documents of one kind with a positive open remainder
// within a workspace, oldest issue first. This is the candidate pool for
// transaction-anchored scans.
func (r *DocumentRepository) ListOpen(ctx context.Context, workspaceID uuid.UUID, kind shared.DocumentKind) ([]*document.Document, error) {
	query := `
		SELECT id, workspace_id, kind, document_number, counterparty_name, total, currency, issue_date, due_date, amount_paid, amount_remaining, payment_status, version, created_at, updated_at
		FROM documents
		WHERE workspace_id = $1 AND kind = $2 AND amount_remaining > 0
		ORDER BY issue_date ASC, created_at ASC
	`

	rows, err := r.querier.Query(ctx, query, workspaceID, kind)
	if err != nil {
		r.logger.Error("Failed to list open documents", "workspace_id", workspaceID.String(), "error", err)
		return nil, fmt.Errorf("failed to list open documents: %w", err)
	}
	defer rows.Close()

	var docs []*document.Document
	for rows.Next() {
		doc, err := r.scanOne(rows)
		if err != nil {
			r.logger.Error("Failed to scan document", "error", err)
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over documents", "error", err)
		return nil, fmt.Errorf("error iterating over documents: %w", err)
	}

	return docs, nil
}

// UpdateSettlement writes the settlement fields (amount_paid, amount_remaining,
// payment_status) using optimistic locking. Returns ErrConcurrencyConflict if
// the row was modified between read and update.
func (r *DocumentRepository) UpdateSettlement(ctx context.Context, doc *document.Document) error {
	query := `
		UPDATE documents
		SET amount_paid = $1, amount_remaining = $2, payment_status = $3, version = $4, updated_at = $5
		WHERE id = $6 AND version = $7
	`

	result, err := r.querier.Exec(ctx, query,
		doc.AmountPaid,
		doc.AmountRemaining,
		doc.PaymentStatus,
		doc.Version,
		doc.UpdatedAt,
		doc.ID,
		doc.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update document settlement", "id", doc.ID.String(), "error", err)
		return fmt.Errorf("failed to update document settlement: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrConcurrencyConflict{Entity: "document", ID: doc.ID}
	}

	return nil
}

// LockForUpdate obtains a pessimistic lock on the document and returns its
// current state. This should be used within a transaction when confirming or
// unlinking allocations.
func (r *DocumentRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	query := `
		SELECT id, workspace_id, kind, document_number, counterparty_name, total, currency, issue_date, due_date, amount_paid, amount_remaining, payment_status, version, created_at, updated_at
		FROM documents
		WHERE id = $1
		FOR UPDATE
	`

	doc, err := r.scanOne(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, document.ErrDocumentNotFound{DocumentID: id}
		}
		r.logger.Error("Failed to lock document for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock document for update: %w", err)
	}

	return doc, nil
}

func (r *DocumentRepository) scanOne(row pgx.Row) (*document.Document, error) {
	var doc document.Document
	err := row.Scan(
		&doc.ID,
		&doc.WorkspaceID,
		&doc.Kind,
		&doc.DocumentNumber,
		&doc.CounterpartyName,
		&doc.Total,
		&doc.Currency,
		&doc.IssueDate,
		&doc.DueDate,
		&doc.AmountPaid,
		&doc.AmountRemaining,
		&doc.PaymentStatus,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
