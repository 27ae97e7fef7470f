package components

import (
	"context"
	"log/slog"
	"time"

	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/matching"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/service"
)

type DecisionRecorderImpl struct {
	decisionRepo decision.Repository
	logger       *slog.Logger
}

func NewDecisionRecorder(decisionRepo decision.Repository, logger *slog.Logger) service.DecisionRecorder {
	return &DecisionRecorderImpl{
		decisionRepo: decisionRepo,
		logger:       logger,
	}
}

// RecordOutcome persists the engine outcome as a completed decision record.
// The scan request id becomes the decision id, which is what makes redelivered
// scans detectable.
func (r *DecisionRecorderImpl) RecordOutcome(ctx context.Context, request *shared.ScanRequest, outcome *matching.Outcome) (*decision.Record, error) {
	logger := r.logger
	if request.CorrelationID != "" {
		logger = r.logger.With("correlation_id", request.CorrelationID)
	}

	rec := &decision.Record{
		DecisionID:    request.RequestID,
		WorkspaceID:   request.WorkspaceID,
		AnchorKind:    request.AnchorKind,
		AnchorID:      request.AnchorID,
		Action:        outcome.Action,
		Best:          outcome.Best,
		Alternatives:  outcome.Alternatives,
		Status:        shared.DecisionStatusCompleted,
		CorrelationID: request.CorrelationID,
		EngineVersion: decision.EngineVersion,
		DecidedAt:     time.Now().UTC(),
	}

	if err := r.decisionRepo.Create(ctx, rec); err != nil {
		return nil, err
	}

	logger.Info("Decision recorded",
		"decision_id", rec.DecisionID.String(),
		"action", rec.Action,
		"alternatives", len(rec.Alternatives),
	)
	return rec, nil
}
