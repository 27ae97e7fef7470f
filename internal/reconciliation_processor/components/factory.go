package components

import (
	"log/slog"

	"github.com/reconcilia-matching-engine/internal/config"
	"github.com/reconcilia-matching-engine/internal/domain/allocation"
	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/escalation"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
	"github.com/reconcilia-matching-engine/internal/ledger"
	"github.com/reconcilia-matching-engine/internal/matching"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/service"
)

// CreateProcessingService creates a new ProcessingService with all its dependencies.
func CreateProcessingService(
	engine *matching.Engine,
	ledgerService *ledger.Service,
	transactionRepo transaction.Repository,
	documentRepo document.Repository,
	patternRepo vendorpattern.Repository,
	allocationRepo allocation.Repository,
	decisionRepo decision.Repository,
	escalationRepo escalation.Repository,
	logger *slog.Logger,
	cfg *config.Config,
) service.ProcessingService {
	validator := NewScanValidator(decisionRepo, logger)
	loader := NewAnchorLoader(transactionRepo, documentRepo, patternRepo, logger)
	recorder := NewDecisionRecorder(decisionRepo, logger)
	applier := NewAllocationApplier(ledgerService, logger)
	escalations := NewEscalationManager(escalationRepo, patternRepo, allocationRepo, cfg.Matching.SuggestThreshold, logger)
	failureRecorder := NewFailureRecorder(decisionRepo, logger)

	baseService := service.NewProcessingService(
		validator,
		loader,
		engine,
		recorder,
		applier,
		escalations,
		failureRecorder,
		logger,
	)

	workerPoolService, err := service.NewWorkerPoolProcessingService(
		baseService,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)

	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return baseService
	}

	logger.Info("Created worker pool processing service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService
}
