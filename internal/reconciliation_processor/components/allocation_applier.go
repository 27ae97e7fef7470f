package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/domain/allocation"
	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/ledger"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/service"
)

// allocationConfirmer is the slice of the ledger service the applier needs
type allocationConfirmer interface {
	ConfirmAllocation(ctx context.Context, req ledger.ConfirmRequest) (*allocation.PaymentAllocation, error)
}

type AllocationApplierImpl struct {
	ledgerService allocationConfirmer
	logger        *slog.Logger
}

func NewAllocationApplier(ledgerService allocationConfirmer, logger *slog.Logger) service.AllocationApplier {
	return &AllocationApplierImpl{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

// Apply confirms one allocation per item of the winning candidate. The ledger
// service owns atomicity and the idempotent-confirm check per allocation, so a
// partially applied combination converges on redelivery of a manual rescan.
func (a *AllocationApplierImpl) Apply(ctx context.Context, request *shared.ScanRequest, best *decision.ScoredCandidate) error {
	logger := a.logger
	if request.CorrelationID != "" {
		logger = a.logger.With("correlation_id", request.CorrelationID)
	}

	for _, item := range best.Items {
		amount, err := decimal.NewFromString(item.Amount)
		if err != nil {
			return fmt.Errorf("invalid allocation amount %q for item %s: %w", item.Amount, item.ID.String(), err)
		}

		confirm := ledger.ConfirmRequest{
			WorkspaceID:   request.WorkspaceID,
			Amount:        amount,
			Method:        shared.AllocationMethodAuto,
			Confidence:    best.Signals.Confidence,
			CorrelationID: request.CorrelationID,
		}
		if request.AnchorKind == shared.AnchorKindTransaction {
			confirm.TransactionID = request.AnchorID
			confirm.DocumentID = item.ID
		} else {
			confirm.TransactionID = item.ID
			confirm.DocumentID = request.AnchorID
		}

		alloc, err := a.ledgerService.ConfirmAllocation(ctx, confirm)
		if err != nil {
			return fmt.Errorf("confirming allocation of %s to item %s: %w", item.Amount, item.ID.String(), err)
		}

		logger.Info("Auto-match allocation confirmed",
			"allocation_id", alloc.ID.String(),
			"transaction_id", confirm.TransactionID.String(),
			"document_id", confirm.DocumentID.String(),
			"amount", item.Amount,
			"confidence", best.Signals.Confidence,
		)
	}

	return nil
}
