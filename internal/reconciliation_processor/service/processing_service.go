package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/matching"
)

type ProcessingServiceImpl struct {
	validator         ScanValidator
	loader            AnchorLoader
	engine            *matching.Engine
	recorder          DecisionRecorder
	allocator         AllocationApplier
	escalationManager EscalationManager
	failureRecorder   FailureRecorder
	logger            *slog.Logger
}

func NewProcessingService(
	validator ScanValidator,
	loader AnchorLoader,
	engine *matching.Engine,
	recorder DecisionRecorder,
	allocator AllocationApplier,
	escalationManager EscalationManager,
	failureRecorder FailureRecorder,
	logger *slog.Logger,
) ProcessingService {
	return &ProcessingServiceImpl{
		validator:         validator,
		loader:            loader,
		engine:            engine,
		recorder:          recorder,
		allocator:         allocator,
		escalationManager: escalationManager,
		failureRecorder:   failureRecorder,
		logger:            logger,
	}
}

// ProcessScan handles the core logic for reconciling one anchor. Permanent
// failures are recorded as FAILED decisions and acknowledged; only transient
// infrastructure faults return an error so the consumer redelivers.
func (s *ProcessingServiceImpl) ProcessScan(ctx context.Context, request *shared.ScanRequest) error {
	logger := s.logger
	if request.CorrelationID != "" {
		logger = s.logger.With("correlation_id", request.CorrelationID)
	}

	logger.Info("Processing scan", "request_id", request.RequestID.String(), "anchor_kind", request.AnchorKind, "anchor_id", request.AnchorID.String())

	// 1. Validate the scan request
	if err := s.validator.Validate(ctx, request); err != nil {
		logger.Error("Scan validation failed", "request_id", request.RequestID.String(), "error", err)

		// Record the failure based on the specific error
		reason := shared.FailureReasonUnknownError
		var scopeErr shared.ErrInvalidScope
		if errors.Is(err, shared.ErrInvalidAnchorKind) {
			reason = shared.FailureReasonInvalidAnchorKind
		} else if errors.As(err, &scopeErr) {
			reason = shared.FailureReasonInvalidScope
		}

		if recordErr := s.failureRecorder.RecordFailure(ctx, request, reason, err.Error()); recordErr != nil {
			logger.Error("Failed to record scan failure", "request_id", request.RequestID.String(), "error", recordErr)
		}

		return nil // Return nil to Kafka consumer to acknowledge the message
	}

	// 2. Check idempotency
	skip, err := s.validator.CheckIdempotency(ctx, request)
	if err != nil {
		return err // Let Kafka retry
	}
	if skip {
		return nil // Already decided, return success
	}

	// 3. Load the anchor, its candidate pool and the vendor patterns
	input, err := s.loader.Load(ctx, request)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{TransactionID: request.AnchorID}) ||
			errors.Is(err, document.ErrDocumentNotFound{DocumentID: request.AnchorID}) {
			if recordErr := s.failureRecorder.RecordFailure(ctx, request, shared.FailureReasonAnchorNotFound, err.Error()); recordErr != nil {
				logger.Error("Failed to record anchor not found failure", "request_id", request.RequestID.String(), "error", recordErr)
			}
			return nil // Return nil to Kafka consumer
		}

		// Pool and pattern reads share the database; transient faults get
		// another attempt on redelivery
		return fmt.Errorf("failed to load match input for scan %s: %w", request.RequestID.String(), err)
	}

	// 4. Run the matching engine
	outcome, err := s.runEngine(input)
	if err != nil {
		// The engine is deterministic, so redelivery would fail identically
		logger.Error("Matching engine failed", "request_id", request.RequestID.String(), "error", err)
		if recordErr := s.failureRecorder.RecordFailure(ctx, request, shared.FailureReasonEngineError, err.Error()); recordErr != nil {
			logger.Error("Failed to record engine failure", "request_id", request.RequestID.String(), "error", recordErr)
		}
		return nil // Return nil to Kafka consumer
	}

	// 5. Persist the decision record
	record, err := s.recorder.RecordOutcome(ctx, request, outcome)
	if err != nil {
		if errors.Is(err, decision.ErrDuplicateDecision{}) {
			logger.Info("Decision already recorded, skipping", "request_id", request.RequestID.String())
			return nil
		}
		return fmt.Errorf("failed to record decision for scan %s: %w", request.RequestID.String(), err)
	}

	// 6. Confirm allocations on an auto match
	if outcome.Action == shared.MatchActionAutoMatch && outcome.Best != nil {
		if err := s.allocator.Apply(ctx, request, outcome.Best); err != nil {
			// The decision record stands either way; redelivery would skip on
			// the idempotency probe, so retrying buys nothing
			logger.Error("Failed to apply auto-match allocations", "request_id", request.RequestID.String(), "error", err)
			return nil
		}
	}

	// 7. Queue weak outcomes for investigation
	if s.escalationManager.ShouldEscalate(outcome) {
		if err := s.escalationManager.Enqueue(ctx, request, input, outcome); err != nil {
			// Escalation is an enrichment; its loss never blocks the scan
			logger.Error("Failed to enqueue escalation case", "request_id", request.RequestID.String(), "error", err)
			return nil
		}
	}

	logger.Info("Scan processed",
		"request_id", request.RequestID.String(),
		"action", record.Action,
		"candidates", len(outcome.Ranked),
	)
	return nil // SUCCESS!
}

// runEngine dispatches to the anchor side the scan names
func (s *ProcessingServiceImpl) runEngine(input *MatchInput) (*matching.Outcome, error) {
	if input.Transaction != nil {
		return s.engine.MatchTransaction(input.Transaction, input.DocumentPool, input.Patterns)
	}
	return s.engine.MatchDocument(input.Document, input.TransactionPool, input.Patterns)
}
