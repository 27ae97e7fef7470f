package components

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/service"
)

type AnchorLoaderImpl struct {
	transactionRepo transaction.Repository
	documentRepo    document.Repository
	patternRepo     vendorpattern.Repository
	logger          *slog.Logger
}

func NewAnchorLoader(
	transactionRepo transaction.Repository,
	documentRepo document.Repository,
	patternRepo vendorpattern.Repository,
	logger *slog.Logger,
) service.AnchorLoader {
	return &AnchorLoaderImpl{
		transactionRepo: transactionRepo,
		documentRepo:    documentRepo,
		patternRepo:     patternRepo,
		logger:          logger,
	}
}

// Load fetches the anchor row, the open pool on the opposite side and the
// vendor patterns for every counterparty the scorer might consult
func (l *AnchorLoaderImpl) Load(ctx context.Context, request *shared.ScanRequest) (*service.MatchInput, error) {
	if request.AnchorKind == shared.AnchorKindTransaction {
		return l.loadForTransaction(ctx, request)
	}
	return l.loadForDocument(ctx, request)
}

func (l *AnchorLoaderImpl) loadForTransaction(ctx context.Context, request *shared.ScanRequest) (*service.MatchInput, error) {
	txn, err := l.transactionRepo.GetByID(ctx, request.AnchorID)
	if err != nil {
		return nil, err
	}
	if txn.WorkspaceID != request.WorkspaceID {
		// Foreign workspaces must not learn the row exists
		return nil, transaction.ErrTransactionNotFound{TransactionID: request.AnchorID}
	}

	pool, err := l.documentRepo.ListOpen(ctx, request.WorkspaceID, shared.KindForDirection(txn.Direction))
	if err != nil {
		return nil, err
	}

	counterparties := make([]string, 0, len(pool))
	for _, d := range pool {
		counterparties = append(counterparties, d.CounterpartyName)
	}
	patterns, err := l.loadPatterns(ctx, request.WorkspaceID, counterparties)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("Loaded transaction anchor",
		"transaction_id", txn.ID.String(),
		"pool_size", len(pool),
		"patterns", len(patterns),
	)
	return &service.MatchInput{Transaction: txn, DocumentPool: pool, Patterns: patterns}, nil
}

func (l *AnchorLoaderImpl) loadForDocument(ctx context.Context, request *shared.ScanRequest) (*service.MatchInput, error) {
	doc, err := l.documentRepo.GetByID(ctx, request.AnchorID)
	if err != nil {
		return nil, err
	}
	if doc.WorkspaceID != request.WorkspaceID {
		// Foreign workspaces must not learn the row exists
		return nil, document.ErrDocumentNotFound{DocumentID: request.AnchorID}
	}

	pool, err := l.transactionRepo.ListOpen(ctx, request.WorkspaceID, shared.DirectionForKind(doc.Kind))
	if err != nil {
		return nil, err
	}

	patterns, err := l.loadPatterns(ctx, request.WorkspaceID, []string{doc.CounterpartyName})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("Loaded document anchor",
		"document_id", doc.ID.String(),
		"pool_size", len(pool),
		"patterns", len(patterns),
	)
	return &service.MatchInput{Document: doc, TransactionPool: pool, Patterns: patterns}, nil
}

// loadPatterns fetches learned patterns for the given counterparty names,
// keyed by normalized counterparty. Names without history are simply absent.
func (l *AnchorLoaderImpl) loadPatterns(ctx context.Context, workspaceID uuid.UUID, counterparties []string) (map[string]*vendorpattern.Pattern, error) {
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

		p, err := l.patternRepo.GetByCounterparty(ctx, workspaceID, key)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out[key] = p
		}
	}
	return out, nil
}
