// Package learner maintains per-counterparty vendor patterns from confirmed
// and rejected matches. Learning is incremental: running averages and set
// unions are folded into the stored pattern, so it never replays history and
// can run synchronously after a confirmation commits.
package learner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
	"github.com/reconcilia-matching-engine/internal/matching"
)

// maxWriteAttempts bounds optimistic-lock retries per learning event
const maxWriteAttempts = 3

// Service folds match outcomes into vendor patterns
type Service struct {
	patterns  vendorpattern.Repository
	feeModels []matching.FeeModel
	logger    *slog.Logger
}

func NewService(patterns vendorpattern.Repository, feeModels []matching.FeeModel, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		patterns:  patterns,
		feeModels: feeModels,
		logger:    logger,
	}
}

// RecordConfirmation merges one confirmed allocation into the document
// counterparty's pattern, creating the pattern on first confirmation. A lost
// optimistic-lock race reloads and retries against the fresh state.
func (s *Service) RecordConfirmation(ctx context.Context, txn *transaction.Transaction, doc *document.Document, method shared.AllocationMethod) error {
	if txn == nil || doc == nil {
		return shared.ErrValidation{Field: "confirmation", Reason: "transaction and document are required"}
	}
	key := vendorpattern.NormalizeCounterparty(doc.CounterpartyName)
	if key == "" {
		return vendorpattern.ErrEmptyCounterparty
	}

	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		pattern, err := s.patterns.GetByCounterparty(ctx, doc.WorkspaceID, key)
		if err != nil {
			return fmt.Errorf("loading vendor pattern: %w", err)
		}

		created := false
		if pattern == nil {
			pattern, err = vendorpattern.New(doc.WorkspaceID, doc.CounterpartyName)
			if err != nil {
				return err
			}
			created = true
		}

		mergeConfirmation(pattern, txn, doc, method, s.feeModels)

		if created {
			err = s.patterns.Create(ctx, pattern)
		} else {
			err = s.patterns.Update(ctx, pattern)
		}
		if err == nil {
			s.logger.Info("vendor pattern learned",
				"workspace_id", doc.WorkspaceID,
				"counterparty", key,
				"match_count", pattern.MatchCount,
				"method", method,
			)
			return nil
		}

		var conflict shared.ErrConcurrencyConflict
		if !errors.As(err, &conflict) {
			return fmt.Errorf("saving vendor pattern: %w", err)
		}
		lastErr = err
		s.logger.Warn("vendor pattern write conflicted, retrying",
			"counterparty", key,
			"attempt", attempt,
		)
	}
	return lastErr
}

// RecordRejection dissociates a rejected suggestion's wording from the
// counterparty. Nothing is unlearned: confirmed stats stay intact, the
// offending tokens just stop counting as identity evidence.
func (s *Service) RecordRejection(ctx context.Context, txn *transaction.Transaction, doc *document.Document) error {
	if txn == nil || doc == nil {
		return shared.ErrValidation{Field: "rejection", Reason: "transaction and document are required"}
	}
	key := vendorpattern.NormalizeCounterparty(doc.CounterpartyName)
	if key == "" {
		return vendorpattern.ErrEmptyCounterparty
	}

	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		pattern, err := s.patterns.GetByCounterparty(ctx, doc.WorkspaceID, key)
		if err != nil {
			return fmt.Errorf("loading vendor pattern: %w", err)
		}
		if pattern == nil {
			// No history to dissociate from
			return nil
		}

		if !mergeRejection(pattern, txn) {
			return nil
		}

		err = s.patterns.Update(ctx, pattern)
		if err == nil {
			s.logger.Info("vendor pattern dissociated",
				"workspace_id", doc.WorkspaceID,
				"counterparty", key,
				"excluded_keywords", len(pattern.ExcludedKeywords),
			)
			return nil
		}

		var conflict shared.ErrConcurrencyConflict
		if !errors.As(err, &conflict) {
			return fmt.Errorf("saving vendor pattern: %w", err)
		}
		lastErr = err
		s.logger.Warn("vendor pattern write conflicted, retrying",
			"counterparty", key,
			"attempt", attempt,
		)
	}
	return lastErr
}
