// Package ledger owns the allocation write path: confirming, unlinking and
// rejecting matches while keeping transaction and document balances consistent
// under concurrent confirmations. Every balance change happens inside one
// database transaction holding row locks on both sides of the link.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/domain/allocation"
	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/platform/persistence"
)

// maxTxAttempts bounds retries when an optimistic write loses a race
const maxTxAttempts = 3

// ConfirmationListener receives ledger changes after they commit. The learner
// implements it; a nil listener simply disables learning.
type ConfirmationListener interface {
	RecordConfirmation(ctx context.Context, txn *transaction.Transaction, doc *document.Document, method shared.AllocationMethod) error
	RecordRejection(ctx context.Context, txn *transaction.Transaction, doc *document.Document) error
}

// ConfirmRequest carries one allocation confirmation
type ConfirmRequest struct {
	WorkspaceID   uuid.UUID
	TransactionID uuid.UUID
	DocumentID    uuid.UUID
	Amount        decimal.Decimal
	Method        shared.AllocationMethod
	Confidence    int // engine confidence behind the link, 0 for manual links
	CorrelationID string
}

func (r ConfirmRequest) validate() error {
	if r.WorkspaceID == uuid.Nil {
		return shared.ErrInvalidScope{Field: "workspace_id"}
	}
	if r.TransactionID == uuid.Nil || r.DocumentID == uuid.Nil {
		return shared.ErrValidation{Field: "allocation", Reason: "transaction_id and document_id are required"}
	}
	if !r.Amount.IsPositive() {
		return shared.ErrValidation{Field: "amount", Reason: "must be positive"}
	}
	switch r.Method {
	case shared.AllocationMethodAuto, shared.AllocationMethodAISuggested, shared.AllocationMethodManual:
	default:
		return shared.ErrValidation{Field: "method", Reason: "must be auto, ai_suggested or manual"}
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return shared.ErrValidation{Field: "confidence", Reason: "must be between 0 and 100"}
	}
	return nil
}

// Service executes allocation writes
type Service struct {
	transactions transaction.Repository
	documents    document.Repository
	allocations  allocation.Repository
	listener     ConfirmationListener
	logger       *slog.Logger
	beginTx      func(ctx context.Context) (pgx.Tx, error)
}

func NewService(
	pgDB *persistence.PostgresDB,
	transactions transaction.Repository,
	documents document.Repository,
	allocations allocation.Repository,
	listener ConfirmationListener,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		transactions: transactions,
		documents:    documents,
		allocations:  allocations,
		listener:     listener,
		logger:       logger,
	}
	if pgDB != nil {
		s.beginTx = func(ctx context.Context) (pgx.Tx, error) {
			return pgDB.Pool().Begin(ctx)
		}
	}
	return s
}

// ConfirmAllocation links an amount of one transaction to one document.
// Confirming the same (transaction, document, amount) tuple again returns the
// existing allocation without touching balances. New confirmations feed the
// listener after the commit; a learning failure never unwinds the allocation.
func (s *Service) ConfirmAllocation(ctx context.Context, req ConfirmRequest) (*allocation.PaymentAllocation, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	logger := s.logger
	if req.CorrelationID != "" {
		logger = logger.With("correlation_id", req.CorrelationID)
	}

	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		alloc, txn, doc, isNew, err := s.confirmOnce(ctx, req, logger)
		if err == nil {
			if isNew {
				logger.Info("allocation confirmed",
					"allocation_id", alloc.ID,
					"transaction_id", req.TransactionID,
					"document_id", req.DocumentID,
					"amount", req.Amount.StringFixed(2),
					"method", req.Method,
				)
				s.notifyConfirmed(ctx, txn, doc, req.Method, logger)
			}
			return alloc, nil
		}

		var conflict shared.ErrConcurrencyConflict
		if !errors.As(err, &conflict) {
			return nil, err
		}
		lastErr = err
		logger.Warn("allocation write conflicted, retrying",
			"attempt", attempt,
			"transaction_id", req.TransactionID,
			"document_id", req.DocumentID,
		)
	}
	return nil, lastErr
}

func (s *Service) confirmOnce(ctx context.Context, req ConfirmRequest, logger *slog.Logger) (alloc *allocation.PaymentAllocation, txn *transaction.Transaction, doc *document.Document, isNew bool, err error) {
	var tx pgx.Tx
	tx, err = s.beginTx(ctx)
	if err != nil {
		err = fmt.Errorf("beginning allocation transaction: %w", err)
		return
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logger.Error("rollback failed after allocation error", "error", rbErr, "cause", err)
			}
		}
	}()

	// 1. Lock both rows, transaction first, so concurrent confirms on the same
	// pair serialize instead of deadlocking
	txn, err = s.transactions.WithTx(tx).LockForUpdate(ctx, req.TransactionID)
	if err != nil {
		return
	}
	doc, err = s.documents.WithTx(tx).LockForUpdate(ctx, req.DocumentID)
	if err != nil {
		return
	}

	// 2. Scope and compatibility
	if txn.WorkspaceID != req.WorkspaceID {
		err = transaction.ErrTransactionNotFound{TransactionID: req.TransactionID}
		return
	}
	if doc.WorkspaceID != req.WorkspaceID {
		err = document.ErrDocumentNotFound{DocumentID: req.DocumentID}
		return
	}
	if txn.Currency != doc.Currency {
		err = shared.ErrCurrencyMismatch
		return
	}
	if !doc.SettlesWith(txn.Direction) {
		err = shared.ErrValidation{Field: "direction", Reason: "a " + string(txn.Direction) + " cannot settle a " + string(doc.Kind)}
		return
	}

	// 3. Idempotency: the same tuple confirmed twice is one allocation
	var existing *allocation.PaymentAllocation
	existing, err = s.allocations.WithTx(tx).Find(ctx, req.TransactionID, req.DocumentID, req.Amount)
	if err != nil {
		return
	}
	if existing != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Error("rollback failed on idempotent confirm", "error", rbErr)
		}
		logger.Info("allocation already exists, confirm is a no-op",
			"allocation_id", existing.ID,
			"transaction_id", req.TransactionID,
			"document_id", req.DocumentID,
		)
		return existing, txn, doc, false, nil
	}

	// 4. Balance invariants
	if req.Amount.GreaterThan(txn.Unallocated()) {
		err = shared.ErrValidation{Field: "amount", Reason: "exceeds the transaction's unallocated remainder"}
		return
	}
	if req.Amount.GreaterThan(doc.AmountRemaining) {
		err = shared.ErrValidation{Field: "amount", Reason: "exceeds the document's open remainder"}
		return
	}

	// 5. Apply and persist both sides plus the link row
	if err = txn.ApplyAllocation(req.Amount); err != nil {
		err = shared.ErrValidation{Field: "amount", Reason: err.Error()}
		return
	}
	if err = doc.ApplyPayment(req.Amount); err != nil {
		err = shared.ErrValidation{Field: "amount", Reason: err.Error()}
		return
	}

	alloc, err = allocation.New(req.WorkspaceID, req.TransactionID, req.DocumentID, req.Amount, req.Method, req.Confidence)
	if err != nil {
		return
	}
	if err = s.allocations.WithTx(tx).Create(ctx, alloc); err != nil {
		return
	}
	if err = s.transactions.WithTx(tx).UpdateReconciliation(ctx, txn); err != nil {
		return
	}
	if err = s.documents.WithTx(tx).UpdateSettlement(ctx, doc); err != nil {
		return
	}

	if err = tx.Commit(ctx); err != nil {
		err = fmt.Errorf("committing allocation: %w", err)
		return
	}
	return alloc, txn, doc, true, nil
}

// UnlinkAllocation reverses one allocation exactly: balances and statuses on
// both sides return to their pre-link values and the allocation row is
// removed. The decision audit trail is untouched.
func (s *Service) UnlinkAllocation(ctx context.Context, workspaceID, allocationID uuid.UUID) error {
	if workspaceID == uuid.Nil {
		return shared.ErrInvalidScope{Field: "workspace_id"}
	}
	if allocationID == uuid.Nil {
		return shared.ErrValidation{Field: "allocation_id", Reason: "is required"}
	}

	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.unlinkOnce(ctx, workspaceID, allocationID)
		if err == nil {
			return nil
		}

		var conflict shared.ErrConcurrencyConflict
		if !errors.As(err, &conflict) {
			return err
		}
		lastErr = err
		s.logger.Warn("unlink write conflicted, retrying",
			"attempt", attempt,
			"allocation_id", allocationID,
		)
	}
	return lastErr
}

func (s *Service) unlinkOnce(ctx context.Context, workspaceID, allocationID uuid.UUID) (err error) {
	var tx pgx.Tx
	tx, err = s.beginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning unlink transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Error("rollback failed after unlink error", "error", rbErr, "cause", err)
			}
		}
	}()

	var alloc *allocation.PaymentAllocation
	alloc, err = s.allocations.WithTx(tx).GetByID(ctx, allocationID)
	if err != nil {
		return
	}
	if alloc.WorkspaceID != workspaceID {
		err = allocation.ErrAllocationNotFound{AllocationID: allocationID}
		return
	}

	var txn *transaction.Transaction
	txn, err = s.transactions.WithTx(tx).LockForUpdate(ctx, alloc.TransactionID)
	if err != nil {
		return
	}
	var doc *document.Document
	doc, err = s.documents.WithTx(tx).LockForUpdate(ctx, alloc.DocumentID)
	if err != nil {
		return
	}

	if err = txn.ReverseAllocation(alloc.Amount); err != nil {
		return
	}
	if err = doc.ReversePayment(alloc.Amount); err != nil {
		return
	}

	if err = s.allocations.WithTx(tx).Delete(ctx, alloc.ID); err != nil {
		return
	}
	if err = s.transactions.WithTx(tx).UpdateReconciliation(ctx, txn); err != nil {
		return
	}
	if err = s.documents.WithTx(tx).UpdateSettlement(ctx, doc); err != nil {
		return
	}

	if err = tx.Commit(ctx); err != nil {
		err = fmt.Errorf("committing unlink: %w", err)
		return
	}

	s.logger.Info("allocation unlinked",
		"allocation_id", alloc.ID,
		"transaction_id", alloc.TransactionID,
		"document_id", alloc.DocumentID,
		"amount", alloc.Amount.StringFixed(2),
	)
	return nil
}

// RejectSuggestion records that a suggested (transaction, document) pairing is
// wrong. Nothing is written to the ledger; the signal feeds the listener so
// the pairing's wording stops scoring as identity evidence.
func (s *Service) RejectSuggestion(ctx context.Context, workspaceID, transactionID, documentID uuid.UUID) error {
	if workspaceID == uuid.Nil {
		return shared.ErrInvalidScope{Field: "workspace_id"}
	}

	txn, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if txn.WorkspaceID != workspaceID {
		return transaction.ErrTransactionNotFound{TransactionID: transactionID}
	}
	if doc.WorkspaceID != workspaceID {
		return document.ErrDocumentNotFound{DocumentID: documentID}
	}

	if s.listener == nil {
		return nil
	}
	if err := s.listener.RecordRejection(ctx, txn, doc); err != nil {
		return fmt.Errorf("recording rejection: %w", err)
	}

	s.logger.Info("suggestion rejected",
		"workspace_id", workspaceID,
		"transaction_id", transactionID,
		"document_id", documentID,
	)
	return nil
}

func (s *Service) notifyConfirmed(ctx context.Context, txn *transaction.Transaction, doc *document.Document, method shared.AllocationMethod, logger *slog.Logger) {
	if s.listener == nil {
		return
	}
	if err := s.listener.RecordConfirmation(ctx, txn, doc, method); err != nil {
		logger.Error("failed to learn from confirmation",
			"transaction_id", txn.ID,
			"document_id", doc.ID,
			"error", err,
		)
	}
}
