package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/service"
)

type ScanValidatorImpl struct {
	decisionRepo decision.Repository
	logger       *slog.Logger
}

func NewScanValidator(decisionRepo decision.Repository, logger *slog.Logger) service.ScanValidator {
	return &ScanValidatorImpl{
		decisionRepo: decisionRepo,
		logger:       logger,
	}
}

// Validate checks scan request validity
func (v *ScanValidatorImpl) Validate(ctx context.Context, request *shared.ScanRequest) error {
	logger := v.logger
	if request.CorrelationID != "" {
		logger = v.logger.With("correlation_id", request.CorrelationID)
	}

	if request.RequestID == uuid.Nil {
		logger.Error("Scan request without a request id", "anchor_id", request.AnchorID.String())
		return shared.ErrValidation{Field: "request_id", Reason: "is required"}
	}

	if err := request.Validate(); err != nil {
		logger.Error("Invalid scan request", "request_id", request.RequestID.String(), "error", err)
		return err
	}

	return nil
}

// CheckIdempotency checks if the scan was already decided. Scan request ids
// double as decision ids, so one probe answers it.
func (v *ScanValidatorImpl) CheckIdempotency(ctx context.Context, request *shared.ScanRequest) (bool, error) {
	logger := v.logger
	if request.CorrelationID != "" {
		logger = v.logger.With("correlation_id", request.CorrelationID)
	}

	existing, err := v.decisionRepo.GetByDecisionID(ctx, request.RequestID)
	if err != nil {
		if errors.Is(err, decision.ErrDecisionNotFound{}) {
			return false, nil // Continue processing
		}
		logger.Error("Failed to check decisions for idempotency", "request_id", request.RequestID.String(), "error", err)
		return false, fmt.Errorf("idempotency check failed for scan %s: %w", request.RequestID.String(), err)
	}

	if existing != nil {
		logger.Info("Scan already decided (idempotency)", "request_id", request.RequestID.String(), "action", existing.Action)
		return true, nil // Skip processing
	}

	return false, nil
}
