package escalation_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/escalation"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// Investigator runs one investigation request against the reasoning agent
type Investigator interface {
	Investigate(ctx context.Context, req *escalation.InvestigationRequest) (*escalation.Verdict, error)
}

// CaseResolver carries one queued case through investigation and resolution
type CaseResolver interface {
	ResolveCase(ctx context.Context, c *escalation.Case) error
}

// CaseResolverImpl implements CaseResolver
type CaseResolverImpl struct {
	escalationRepo escalation.Repository
	decisionRepo   decision.Repository
	investigator   Investigator
	logger         *slog.Logger
}

// NewCaseResolver creates a new resolver
func NewCaseResolver(
	escalationRepo escalation.Repository,
	decisionRepo decision.Repository,
	investigator Investigator,
	logger *slog.Logger,
) CaseResolver {
	return &CaseResolverImpl{
		escalationRepo: escalationRepo,
		decisionRepo:   decisionRepo,
		investigator:   investigator,
		logger:         logger,
	}
}

// ResolveCase decodes the case payload, investigates it, and writes the verdict
// to both the case row and the decision record. The verdict never touches
// allocations; applying a matched verdict stays a human action.
func (r *CaseResolverImpl) ResolveCase(ctx context.Context, c *escalation.Case) error {
	request, err := c.Request()
	if err != nil {
		r.logger.Error("Failed to decode investigation payload from escalation case",
			"case_id", c.ID, "decision_id", c.DecisionID.String(), "error", err,
		)
		// An unreadable payload never improves with retries
		if updateErr := r.escalationRepo.UpdateStatus(ctx, c.ID, shared.EscalationStatusFailed); updateErr != nil {
			r.logger.Error("Also failed to update case status to FAILED after payload error", "case_id", c.ID, "update_error", updateErr)
		}
		return fmt.Errorf("decode payload for case %d failed: %w", c.ID, err)
	}

	logger := r.logger.With("decision_id", c.DecisionID.String())
	logger.Info("Attempting to investigate escalation case", "case_id", c.ID, "candidates", len(request.Candidates))

	verdict, err := r.investigator.Investigate(ctx, request)
	if err != nil {
		return fmt.Errorf("investigation for case %d failed: %w", c.ID, err)
	}

	if err := r.escalationRepo.Resolve(ctx, c.ID, verdict); err != nil {
		logger.Error("Failed to resolve escalation case", "case_id", c.ID, "error", err)
		return fmt.Errorf("failed to resolve case %d: %w", c.ID, err)
	}

	outcome := &decision.EscalationOutcome{
		Status:          verdict.Status,
		Confidence:      verdict.Confidence,
		Explanation:     verdict.Explanation,
		SuggestedAction: verdict.SuggestedAction,
		ResolvedAt:      time.Now().UTC(),
	}
	if err := r.decisionRepo.SetEscalationOutcome(ctx, c.DecisionID, outcome); err != nil {
		// The verdict already sits on the resolved case row; only the
		// denormalized copy on the decision record is missing
		logger.Error("Failed to attach escalation outcome to decision record",
			"case_id", c.ID, "decision_id", c.DecisionID.String(), "error", err,
		)
		return fmt.Errorf("case %d resolved, but failed to attach outcome to decision %s: %w", c.ID, c.DecisionID.String(), err)
	}

	logger.Info("Escalation case resolved",
		"case_id", c.ID,
		"verdict_status", verdict.Status,
		"verdict_confidence", verdict.Confidence,
		"matched_items", len(verdict.MatchedItemIDs),
	)
	return nil
}
