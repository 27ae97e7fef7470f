package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/escalation"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
	"github.com/reconcilia-matching-engine/internal/matching"
	"github.com/reconcilia-matching-engine/internal/platform/messaging/producers"
)

// ReconciliationServiceImpl implements the ReconciliationService interface.
// Scans go through Kafka to the processor; the suggestion endpoints run the
// engine in-process because their callers wait for the answer.
type ReconciliationServiceImpl struct {
	engine       *matching.Engine
	producer     producers.MessagePublisher
	transactions transaction.Repository
	documents    document.Repository
	patterns     vendorpattern.Repository
	decisions    decision.Repository
	escalations  escalation.Repository
	logger       *slog.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	logger *slog.Logger,
	engine *matching.Engine,
	producer producers.MessagePublisher,
	transactions transaction.Repository,
	documents document.Repository,
	patterns vendorpattern.Repository,
	decisions decision.Repository,
	escalations escalation.Repository,
) ReconciliationService {
	return &ReconciliationServiceImpl{
		engine:       engine,
		producer:     producer,
		transactions: transactions,
		documents:    documents,
		patterns:     patterns,
		decisions:    decisions,
		escalations:  escalations,
		logger:       logger,
	}
}

// RequestScan publishes a scan request for asynchronous processing. The
// message is keyed by anchor id so repeated scans of one anchor stay ordered.
// Whether the anchor exists is the processor's problem; the gateway only
// checks the request is well formed.
func (s *ReconciliationServiceImpl) RequestScan(ctx context.Context, workspaceID, anchorID uuid.UUID, kind shared.AnchorKind, requestedBy, correlationID string) (*shared.ScanRequest, error) {
	req := shared.NewScanRequest(workspaceID, anchorID, kind, requestedBy, correlationID)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := s.producer.Publish(ctx, anchorID.String(), req); err != nil {
		s.logger.Error("Failed to publish scan request",
			"workspace_id", workspaceID,
			"anchor_kind", string(kind),
			"anchor_id", anchorID,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Scan request published",
		"decision_id", req.RequestID,
		"workspace_id", workspaceID,
		"anchor_kind", string(kind),
		"anchor_id", anchorID,
	)
	return req, nil
}

// SuggestForTransaction runs the matching pipeline synchronously for one
// transaction anchor and records the resulting decision
func (s *ReconciliationServiceImpl) SuggestForTransaction(ctx context.Context, workspaceID, transactionID uuid.UUID, correlationID string) (*decision.Record, error) {
	txn, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.WorkspaceID != workspaceID {
		// Foreign workspaces must not learn the row exists
		return nil, transaction.ErrTransactionNotFound{TransactionID: transactionID}
	}

	pool, err := s.documents.ListOpen(ctx, workspaceID, shared.KindForDirection(txn.Direction))
	if err != nil {
		return nil, err
	}

	counterparties := make([]string, 0, len(pool))
	for _, d := range pool {
		counterparties = append(counterparties, d.CounterpartyName)
	}
	patterns, err := s.loadPatterns(ctx, workspaceID, counterparties)
	if err != nil {
		return nil, err
	}

	outcome, err := s.engine.MatchTransaction(txn, pool, patterns)
	if err != nil {
		return nil, err
	}

	return s.recordDecision(ctx, workspaceID, shared.AnchorKindTransaction, transactionID, outcome, correlationID)
}

// SuggestForDocument is the document-anchored counterpart of SuggestForTransaction
func (s *ReconciliationServiceImpl) SuggestForDocument(ctx context.Context, workspaceID, documentID uuid.UUID, correlationID string) (*decision.Record, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.WorkspaceID != workspaceID {
		return nil, document.ErrDocumentNotFound{DocumentID: documentID}
	}

	pool, err := s.transactions.ListOpen(ctx, workspaceID, shared.DirectionForKind(doc.Kind))
	if err != nil {
		return nil, err
	}

	patterns, err := s.loadPatterns(ctx, workspaceID, []string{doc.CounterpartyName})
	if err != nil {
		return nil, err
	}

	outcome, err := s.engine.MatchDocument(doc, pool, patterns)
	if err != nil {
		return nil, err
	}

	return s.recordDecision(ctx, workspaceID, shared.AnchorKindDocument, documentID, outcome, correlationID)
}

// GetDecision retrieves one decision record by its id
func (s *ReconciliationServiceImpl) GetDecision(ctx context.Context, decisionID uuid.UUID) (*decision.Record, error) {
	return s.decisions.GetByDecisionID(ctx, decisionID)
}

// ListDecisions retrieves paginated decision history for a workspace.
// Returns records, total count, and any error
func (s *ReconciliationServiceImpl) ListDecisions(ctx context.Context, workspaceID uuid.UUID, action shared.MatchAction, page, perPage int) ([]*decision.Record, int64, error) {
	filter := decision.HistoryFilter{
		Action: action,
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}

	records, err := s.decisions.ListByWorkspace(ctx, workspaceID, filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.decisions.CountByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// GetVendorPattern returns learned counterparty behavior, nil when nothing
// has been learned yet
func (s *ReconciliationServiceImpl) GetVendorPattern(ctx context.Context, workspaceID uuid.UUID, counterparty string) (*vendorpattern.Pattern, error) {
	key := vendorpattern.NormalizeCounterparty(counterparty)
	if key == "" {
		return nil, nil
	}
	return s.patterns.GetByCounterparty(ctx, workspaceID, key)
}

// RetryEscalation puts a failed escalation case back in the poller's queue
func (s *ReconciliationServiceImpl) RetryEscalation(ctx context.Context, decisionID uuid.UUID) error {
	c, err := s.escalations.GetByDecisionID(ctx, decisionID)
	if err != nil {
		return err
	}
	if c.Status != shared.EscalationStatusFailed {
		return shared.ErrValidation{Field: "status", Reason: "only failed escalation cases can be retried"}
	}

	if err := s.escalations.Requeue(ctx, c.ID); err != nil {
		return err
	}

	s.logger.Info("Escalation case requeued",
		"decision_id", decisionID,
		"case_id", c.ID,
	)
	return nil
}

// loadPatterns fetches learned patterns for the given counterparty names,
// keyed by normalized counterparty. Names without history are simply absent.
func (s *ReconciliationServiceImpl) loadPatterns(ctx context.Context, workspaceID uuid.UUID, counterparties []string) (map[string]*vendorpattern.Pattern, error) {
	out := make(map[string]*vendorpattern.Pattern)
	seen := make(map[string]struct{}, len(counterparties))

	for _, name := range counterparties {
		key := vendorpattern.NormalizeCounterparty(name)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		p, err := s.patterns.GetByCounterparty(ctx, workspaceID, key)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out[key] = p
		}
	}
	return out, nil
}

// recordDecision persists the engine outcome as a completed decision record
func (s *ReconciliationServiceImpl) recordDecision(ctx context.Context, workspaceID uuid.UUID, kind shared.AnchorKind, anchorID uuid.UUID, outcome *matching.Outcome, correlationID string) (*decision.Record, error) {
	rec := &decision.Record{
		DecisionID:    uuid.New(),
		WorkspaceID:   workspaceID,
		AnchorKind:    kind,
		AnchorID:      anchorID,
		Action:        outcome.Action,
		Best:          outcome.Best,
		Alternatives:  outcome.Alternatives,
		Status:        shared.DecisionStatusCompleted,
		CorrelationID: correlationID,
		EngineVersion: decision.EngineVersion,
		DecidedAt:     time.Now().UTC(),
	}

	if err := s.decisions.Create(ctx, rec); err != nil {
		s.logger.Error("Failed to record decision",
			"decision_id", rec.DecisionID,
			"anchor_id", anchorID,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Recorded match decision",
		"decision_id", rec.DecisionID,
		"workspace_id", workspaceID,
		"anchor_kind", string(kind),
		"anchor_id", anchorID,
		"action", string(rec.Action),
	)
	return rec, nil
}
