package components

import (
	"context"
	"log/slog"

	"github.com/reconcilia-matching-engine/internal/domain/allocation"
	"github.com/reconcilia-matching-engine/internal/domain/escalation"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
	"github.com/reconcilia-matching-engine/internal/matching"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/service"
)

// historyLimit caps the recent-allocation precedent shown to the investigator
const historyLimit = 5

type EscalationManagerImpl struct {
	escalationRepo   escalation.Repository
	patternRepo      vendorpattern.Repository
	allocationRepo   allocation.Repository
	suggestThreshold int
	logger           *slog.Logger
}

func NewEscalationManager(
	escalationRepo escalation.Repository,
	patternRepo vendorpattern.Repository,
	allocationRepo allocation.Repository,
	suggestThreshold int,
	logger *slog.Logger,
) service.EscalationManager {
	return &EscalationManagerImpl{
		escalationRepo:   escalationRepo,
		patternRepo:      patternRepo,
		allocationRepo:   allocationRepo,
		suggestThreshold: suggestThreshold,
		logger:           logger,
	}
}

// ShouldEscalate reports whether an outcome is worth an investigation. An
// empty candidate list is not: the agent has nothing to compare, and the
// anchor will re-enter matching when new documents arrive.
func (m *EscalationManagerImpl) ShouldEscalate(outcome *matching.Outcome) bool {
	if len(outcome.Ranked) == 0 {
		return false
	}
	switch outcome.Action {
	case shared.MatchActionNoMatch:
		return true
	case shared.MatchActionPresentOptions:
		// Close ties among strong candidates are a human call, not an
		// investigation; only low-scoring ties go to the agent
		return outcome.Ranked[0].Signals.Confidence < m.suggestThreshold
	default:
		return false
	}
}

// Enqueue snapshots the case and queues it for the escalation poller
func (m *EscalationManagerImpl) Enqueue(ctx context.Context, request *shared.ScanRequest, input *service.MatchInput, outcome *matching.Outcome) error {
	logger := m.logger
	if request.CorrelationID != "" {
		logger = m.logger.With("correlation_id", request.CorrelationID)
	}

	investigation := m.buildRequest(ctx, request, input, outcome, logger)

	c, err := escalation.NewCase(investigation)
	if err != nil {
		return err
	}
	if err := m.escalationRepo.Create(ctx, c); err != nil {
		return err
	}

	logger.Info("Escalation case queued",
		"decision_id", request.RequestID.String(),
		"anchor_id", request.AnchorID.String(),
		"candidates", len(investigation.Candidates),
	)
	return nil
}

// buildRequest assembles the case file. Pattern and history lookups are
// enrichment; their failure degrades the case file but never blocks queueing.
func (m *EscalationManagerImpl) buildRequest(
	ctx context.Context,
	request *shared.ScanRequest,
	input *service.MatchInput,
	outcome *matching.Outcome,
	logger *slog.Logger,
) *escalation.InvestigationRequest {
	investigation := &escalation.InvestigationRequest{
		WorkspaceID: request.WorkspaceID,
		DecisionID:  request.RequestID,
		AnchorKind:  request.AnchorKind,
		AnchorID:    request.AnchorID,
		Anchor:      anchorSummary(request, input),
		Candidates:  outcome.Ranked,
	}

	counterparty := m.counterpartyFor(input, outcome)
	if counterparty == "" {
		return investigation
	}

	pattern, err := m.patternRepo.GetByCounterparty(ctx, request.WorkspaceID, vendorpattern.NormalizeCounterparty(counterparty))
	if err != nil {
		logger.Warn("Pattern lookup for escalation failed", "counterparty", counterparty, "error", err)
	} else if pattern != nil {
		investigation.Pattern = &escalation.PatternSummary{
			Counterparty:     pattern.DisplayName,
			Keywords:         pattern.Keywords,
			Aliases:          pattern.Aliases,
			Processor:        pattern.Processor,
			TypicalDelayDays: pattern.TypicalDelayDays,
			MatchCount:       pattern.MatchCount,
			LearningScore:    pattern.LearningScore,
		}
	}

	history, err := m.allocationRepo.ListRecentByCounterparty(ctx, request.WorkspaceID, counterparty, historyLimit)
	if err != nil {
		logger.Warn("History lookup for escalation failed", "counterparty", counterparty, "error", err)
	} else {
		for _, alloc := range history {
			investigation.History = append(investigation.History, escalation.HistoryEntry{
				TransactionID: alloc.TransactionID,
				DocumentID:    alloc.DocumentID,
				Amount:        alloc.Amount.StringFixed(2),
				Method:        string(alloc.Method),
				AllocatedAt:   alloc.AllocatedAt,
			})
		}
	}

	return investigation
}

// anchorSummary flattens the anchor into the fields the agent reasons over
func anchorSummary(request *shared.ScanRequest, input *service.MatchInput) escalation.AnchorSummary {
	if input.Transaction != nil {
		txn := input.Transaction
		return escalation.AnchorSummary{
			Kind:        shared.AnchorKindTransaction,
			ID:          txn.ID,
			Date:        txn.Date,
			Amount:      txn.Unallocated().StringFixed(2),
			Currency:    txn.Currency,
			Description: txn.Description,
			Reference:   txn.Reference,
		}
	}

	doc := input.Document
	return escalation.AnchorSummary{
		Kind:         shared.AnchorKindDocument,
		ID:           doc.ID,
		Date:         doc.IssueDate,
		Amount:       doc.AmountRemaining.StringFixed(2),
		Currency:     doc.Currency,
		Counterparty: doc.CounterpartyName,
		Reference:    doc.DocumentNumber,
	}
}

// counterpartyFor picks the counterparty whose pattern and history enrich the
// case: the document's own for document anchors, the top candidate's for
// transaction anchors.
func (m *EscalationManagerImpl) counterpartyFor(input *service.MatchInput, outcome *matching.Outcome) string {
	if input.Document != nil {
		return input.Document.CounterpartyName
	}
	if len(outcome.Ranked) == 0 || len(outcome.Ranked[0].Items) == 0 {
		return ""
	}

	topItem := outcome.Ranked[0].Items[0].ID
	for _, d := range input.DocumentPool {
		if d.ID == topItem {
			return d.CounterpartyName
		}
	}
	return ""
}
