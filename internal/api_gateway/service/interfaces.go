package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/reconcilia-matching-engine/internal/domain/allocation"
	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
	"github.com/reconcilia-matching-engine/internal/ledger"
)

// ReconciliationService defines scan, suggestion and decision inspection operations
type ReconciliationService interface {
	// RequestScan validates and publishes an asynchronous scan request.
	// The returned request id doubles as the decision id a client can poll.
	RequestScan(ctx context.Context, workspaceID, anchorID uuid.UUID, kind shared.AnchorKind, requestedBy, correlationID string) (*shared.ScanRequest, error)

	// SuggestForTransaction runs the matching pipeline synchronously for one
	// transaction anchor and records the resulting decision.
	// Returns ErrTransactionNotFound if the anchor doesn't exist in the workspace
	SuggestForTransaction(ctx context.Context, workspaceID, transactionID uuid.UUID, correlationID string) (*decision.Record, error)

	// SuggestForDocument is the document-anchored counterpart of SuggestForTransaction
	SuggestForDocument(ctx context.Context, workspaceID, documentID uuid.UUID, correlationID string) (*decision.Record, error)

	// GetDecision retrieves one decision record by its id
	// Returns ErrDecisionNotFound if no decision with this id exists
	GetDecision(ctx context.Context, decisionID uuid.UUID) (*decision.Record, error)

	// ListDecisions retrieves paginated decision history for a workspace,
	// newest first, optionally filtered by action.
	// Returns records, total count of all decisions, and any error
	ListDecisions(ctx context.Context, workspaceID uuid.UUID, action shared.MatchAction, page, perPage int) ([]*decision.Record, int64, error)

	// GetVendorPattern returns learned counterparty behavior.
	// Returns nil without error when nothing has been learned yet
	GetVendorPattern(ctx context.Context, workspaceID uuid.UUID, counterparty string) (*vendorpattern.Pattern, error)

	// RetryEscalation puts a failed escalation case back in the poller's queue
	RetryEscalation(ctx context.Context, decisionID uuid.UUID) error
}

// AllocationService defines the gateway surface of the allocation ledger
type AllocationService interface {
	// Confirm applies one transaction-to-document allocation.
	// Confirming the same (transaction, document, amount) tuple twice returns
	// the original allocation
	Confirm(ctx context.Context, req ledger.ConfirmRequest) (*allocation.PaymentAllocation, error)

	// Unlink reverses a confirmed allocation, restoring both open balances
	Unlink(ctx context.Context, workspaceID, allocationID uuid.UUID) error

	// Reject records that a reviewer dismissed a suggested pair so the
	// learner stops proposing it
	Reject(ctx context.Context, workspaceID, transactionID, documentID uuid.UUID) error
}
