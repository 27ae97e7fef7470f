package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/reconcilia-matching-engine/internal/domain/allocation"
	"github.com/reconcilia-matching-engine/internal/ledger"
)

// allocationLedger is the slice of the ledger service the gateway needs.
// Narrowed to an interface so handler tests can swap in a mock.
type allocationLedger interface {
	ConfirmAllocation(ctx context.Context, req ledger.ConfirmRequest) (*allocation.PaymentAllocation, error)
	UnlinkAllocation(ctx context.Context, workspaceID, allocationID uuid.UUID) error
	RejectSuggestion(ctx context.Context, workspaceID, transactionID, documentID uuid.UUID) error
}

// AllocationServiceImpl implements the AllocationService interface
type AllocationServiceImpl struct {
	ledger allocationLedger
	logger *slog.Logger
}

// NewAllocationService creates a new allocation service
func NewAllocationService(logger *slog.Logger, ledger allocationLedger) AllocationService {
	return &AllocationServiceImpl{
		ledger: ledger,
		logger: logger,
	}
}

// Confirm applies a match as a payment allocation
func (s *AllocationServiceImpl) Confirm(ctx context.Context, req ledger.ConfirmRequest) (*allocation.PaymentAllocation, error) {
	alloc, err := s.ledger.ConfirmAllocation(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Allocation confirmed",
		"allocation_id", alloc.ID,
		"workspace_id", alloc.WorkspaceID,
		"transaction_id", alloc.TransactionID,
		"document_id", alloc.DocumentID,
		"method", string(alloc.Method),
	)
	return alloc, nil
}

// Unlink reverses a confirmed allocation
func (s *AllocationServiceImpl) Unlink(ctx context.Context, workspaceID, allocationID uuid.UUID) error {
	if err := s.ledger.UnlinkAllocation(ctx, workspaceID, allocationID); err != nil {
		return err
	}

	s.logger.Info("Allocation unlinked",
		"allocation_id", allocationID,
		"workspace_id", workspaceID,
	)
	return nil
}

// Reject records that a suggested pairing is wrong so it stops resurfacing
func (s *AllocationServiceImpl) Reject(ctx context.Context, workspaceID, transactionID, documentID uuid.UUID) error {
	if err := s.ledger.RejectSuggestion(ctx, workspaceID, transactionID, documentID); err != nil {
		return err
	}

	s.logger.Info("Suggestion rejected",
		"workspace_id", workspaceID,
		"transaction_id", transactionID,
		"document_id", documentID,
	)
	return nil
}
