package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
	"github.com/reconcilia-matching-engine/internal/platform/persistence"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint breach
const uniqueViolation = "23505"

// VendorPatternRepository implements the vendorpattern.Repository interface for PostgreSQL
type VendorPatternRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewVendorPatternRepository creates a new PostgreSQL vendor pattern repository
func NewVendorPatternRepository(logger *slog.Logger, db *persistence.PostgresDB) vendorpattern.Repository {
	return &VendorPatternRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *VendorPatternRepository) WithTx(tx pgx.Tx) vendorpattern.Repository {
	return &VendorPatternRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new vendor pattern. Two learners racing to create the first
// pattern for a counterparty hit the (workspace_id, counterparty) unique
// constraint; the loser gets ErrConcurrencyConflict and retries onto Update.
func (r *VendorPatternRepository) Create(ctx context.Context, p *vendorpattern.Pattern) error {
	query := `
		INSERT INTO vendor_patterns (id, workspace_id, counterparty, display_name, keywords, aliases, excluded_keywords, processor, typical_fee, typical_delay_days, delay_stddev_days, recent_delays, typical_amounts, uses_installments, installment_hint, match_count, learning_score, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := r.querier.Exec(ctx, query,
		p.ID,
		p.WorkspaceID,
		p.Counterparty,
		p.DisplayName,
		p.Keywords,
		p.Aliases,
		p.ExcludedKeywords,
		p.Processor,
		p.TypicalFee,
		p.TypicalDelayDays,
		p.DelayStddevDays,
		p.RecentDelays,
		p.TypicalAmounts,
		p.UsesInstallments,
		p.InstallmentHint,
		p.MatchCount,
		p.LearningScore,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shared.ErrConcurrencyConflict{Entity: "vendor_pattern", ID: p.ID}
		}
		r.logger.Error("Failed to create vendor pattern", "counterparty", p.Counterparty, "error", err)
		return fmt.Errorf("failed to create vendor pattern: %w", err)
	}

	return nil
}

// GetByCounterparty retrieves a pattern by its normalized counterparty key.
// Returns nil, nil when the counterparty has no learned history yet.
func (r *VendorPatternRepository) GetByCounterparty(ctx context.Context, workspaceID uuid.UUID, counterparty string) (*vendorpattern.Pattern, error) {
	query := `
		SELECT id, workspace_id, counterparty, display_name, keywords, aliases, excluded_keywords, processor, typical_fee, typical_delay_days, delay_stddev_days, recent_delays, typical_amounts, uses_installments, installment_hint, match_count, learning_score, version, created_at, updated_at
		FROM vendor_patterns
		WHERE workspace_id = $1 AND counterparty = $2
	`

	var p vendorpattern.Pattern
	err := r.querier.QueryRow(ctx, query, workspaceID, counterparty).Scan(
		&p.ID,
		&p.WorkspaceID,
		&p.Counterparty,
		&p.DisplayName,
		&p.Keywords,
		&p.Aliases,
		&p.ExcludedKeywords,
		&p.Processor,
		&p.TypicalFee,
		&p.TypicalDelayDays,
		&p.DelayStddevDays,
		&p.RecentDelays,
		&p.TypicalAmounts,
		&p.UsesInstallments,
		&p.InstallmentHint,
		&p.MatchCount,
		&p.LearningScore,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get vendor pattern", "counterparty", counterparty, "error", err)
		return nil, fmt.Errorf("failed to get vendor pattern: %w", err)
	}

	return &p, nil
}

// Update writes the merged pattern using optimistic locking. Returns
// ErrConcurrencyConflict if another learner merged a confirmation between
// read and update.
func (r *VendorPatternRepository) Update(ctx context.Context, p *vendorpattern.Pattern) error {
	query := `
		UPDATE vendor_patterns
		SET keywords = $1, aliases = $2, excluded_keywords = $3, processor = $4, typical_fee = $5, typical_delay_days = $6, delay_stddev_days = $7, recent_delays = $8, typical_amounts = $9, uses_installments = $10, installment_hint = $11, match_count = $12, learning_score = $13, version = $14, updated_at = $15
		WHERE id = $16 AND version = $17
	`

	result, err := r.querier.Exec(ctx, query,
		p.Keywords,
		p.Aliases,
		p.ExcludedKeywords,
		p.Processor,
		p.TypicalFee,
		p.TypicalDelayDays,
		p.DelayStddevDays,
		p.RecentDelays,
		p.TypicalAmounts,
		p.UsesInstallments,
		p.InstallmentHint,
		p.MatchCount,
		p.LearningScore,
		p.Version,
		p.UpdatedAt,
		p.ID,
		p.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update vendor pattern", "id", p.ID.String(), "error", err)
		return fmt.Errorf("failed to update vendor pattern: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrConcurrencyConflict{Entity: "vendor_pattern", ID: p.ID}
	}

	return nil
}
