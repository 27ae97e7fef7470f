package escalation_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reconcilia-matching-engine/internal/config"
	"github.com/reconcilia-matching-engine/internal/domain/escalation"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// Poller processes pending escalation cases
type Poller struct {
	escalationRepo escalation.Repository
	caseResolver   CaseResolver
	logger         *slog.Logger
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
}

func NewPoller(
	cfg *config.EscalationPollerConfig,
	escalationRepo escalation.Repository,
	caseResolver CaseResolver,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		escalationRepo: escalationRepo,
		caseResolver:   caseResolver,
		logger:         logger,
		pollInterval:   cfg.PollingInterval,
		batchSize:      cfg.BatchSize,
		maxAttempts:    cfg.MaxAttempts,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Escalation Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_attempts", p.maxAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Escalation Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			p.logger.Debug("Escalation Poller tick: processing pending cases")
			if err := p.processPendingCases(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending escalation cases", "error", err)
			}
		}
	}
}

func (p *Poller) processPendingCases(ctx context.Context) error {
	cases, err := p.escalationRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending escalation cases: %w", err)
	}

	if len(cases) == 0 {
		p.logger.Debug("No pending escalation cases found.")
		return nil
	}

	p.logger.Info("Fetched pending escalation cases", "count", len(cases))

	for _, c := range cases {
		logger := p.logger.With("decision_id", c.DecisionID.String())

		// A case that already spent its budget gets no further
		// investigations, even if the FAILED flip was lost earlier
		if c.Attempts >= p.maxAttempts {
			logger.Warn("Escalation case exceeded its attempt budget, marking as FAILED",
				"case_id", c.ID, "attempts", c.Attempts,
			)
			if errUpdate := p.escalationRepo.UpdateStatus(ctx, c.ID, shared.EscalationStatusFailed); errUpdate != nil {
				logger.Error("Failed to update case status to FAILED", "case_id", c.ID, "error", errUpdate)
			}
			continue
		}

		err := p.caseResolver.ResolveCase(ctx, c)
		if err != nil {
			logger.Error("Failed to resolve escalation case",
				"case_id", c.ID, "current_attempts", c.Attempts, "error", err,
			)

			// Increment attempt count
			if errInc := p.escalationRepo.IncrementAttempts(ctx, c.ID); errInc != nil {
				logger.Error("Failed to increment attempts for escalation case", "case_id", c.ID, "error", errInc)
				// Continue to next case if increment fails
				continue
			}

			if c.Attempts+1 >= p.maxAttempts {
				logger.Warn("Max attempts reached for escalation case, marking as FAILED",
					"case_id", c.ID, "attempts_made", c.Attempts+1,
				)
				if errUpdate := p.escalationRepo.UpdateStatus(ctx, c.ID, shared.EscalationStatusFailed); errUpdate != nil {
					logger.Error("Failed to update case status to FAILED after max attempts", "case_id", c.ID, "error", errUpdate)
				}
			}
			continue
		}
		logger.Info("Successfully processed escalation case via CaseResolver", "case_id", c.ID)
	}
	return nil
}
