package components

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/service"
)

type FailureRecorderImpl struct {
	decisionRepo decision.Repository
	logger       *slog.Logger
}

func NewFailureRecorder(decisionRepo decision.Repository, logger *slog.Logger) service.FailureRecorder {
	return &FailureRecorderImpl{
		decisionRepo: decisionRepo,
		logger:       logger,
	}
}

// RecordFailure records a failed scan as a FAILED decision so the work stays
// visible in the audit trail instead of vanishing with the acknowledged message
func (r *FailureRecorderImpl) RecordFailure(ctx context.Context, request *shared.ScanRequest, reason shared.FailureReason, detail string) error {
	logger := r.logger
	if request.CorrelationID != "" {
		logger = r.logger.With("correlation_id", request.CorrelationID)
	}

	failureReason := string(reason)
	if detail != "" {
		failureReason += ": " + detail
	}

	logger.Info("Recording failed scan", "request_id", request.RequestID.String(), "reason", failureReason)

	existing, err := r.decisionRepo.GetByDecisionID(ctx, request.RequestID)
	if err != nil && !errors.Is(err, decision.ErrDecisionNotFound{}) {
		logger.Error("Failed to get existing decision for failed scan", "request_id", request.RequestID.String(), "error", err)
	}
	if existing != nil {
		logger.Info("Decision already recorded for failed scan", "request_id", request.RequestID.String(), "status", existing.Status)
		return nil
	}

	rec := &decision.Record{
		DecisionID:    request.RequestID,
		WorkspaceID:   request.WorkspaceID,
		AnchorKind:    request.AnchorKind,
		AnchorID:      request.AnchorID,
		Action:        shared.MatchActionNoMatch,
		Status:        shared.DecisionStatusFailed,
		FailureReason: failureReason,
		CorrelationID: request.CorrelationID,
		EngineVersion: decision.EngineVersion,
		DecidedAt:     time.Now().UTC(),
	}

	if createErr := r.decisionRepo.Create(ctx, rec); createErr != nil {
		if errors.Is(createErr, decision.ErrDuplicateDecision{}) {
			logger.Info("Concurrent delivery already recorded the failure", "request_id", request.RequestID.String())
			return nil
		}
		logger.Error("Failed to create FAILED decision record", "request_id", request.RequestID.String(), "error", createErr)
		return createErr
	}

	logger.Info("Successfully recorded FAILED decision", "request_id", request.RequestID.String())
	return nil
}
