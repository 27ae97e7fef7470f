package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reconcilia-matching-engine/internal/domain/escalation"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/platform/persistence"
)

// EscalationRepository implements the escalation.Repository interface for PostgreSQL
type EscalationRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewEscalationRepository creates a new PostgreSQL escalation repository
func NewEscalationRepository(logger *slog.Logger, db *persistence.PostgresDB) escalation.Repository {
	return &EscalationRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *EscalationRepository) WithTx(tx pgx.Tx) escalation.Repository {
	return &EscalationRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new escalation case in pending status.
// The case will be picked up by the escalation poller for investigation.
func (r *EscalationRepository) Create(ctx context.Context, c *escalation.Case) error {
	query := `
		INSERT INTO escalation_queue (workspace_id, decision_id, anchor_kind, anchor_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		c.WorkspaceID,
		c.DecisionID,
		c.AnchorKind,
		c.AnchorID,
		c.Payload,
		c.Status,
		c.Attempts,
		c.CreatedAt,
	).Scan(&c.ID)

	if err != nil {
		r.logger.Error("Failed to create escalation case",
			"decision_id", c.DecisionID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create escalation case: %w", err)
	}

	return nil
}

// GetPending retrieves a batch of pending escalation cases ordered by creation
// time. This is used by the escalation poller to investigate cases in FIFO order.
func (r *EscalationRepository) GetPending(ctx context.Context, limit int) ([]*escalation.Case, error) {
	query := `
		SELECT id, workspace_id, decision_id, anchor_kind, anchor_id, payload, status, attempts, verdict, created_at, last_attempt_at
		FROM escalation_queue
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, shared.EscalationStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to get pending escalation cases", "error", err)
		return nil, fmt.Errorf("failed to get pending escalation cases: %w", err)
	}
	defer rows.Close()

	var cases []*escalation.Case
	for rows.Next() {
		var c escalation.Case
		err := rows.Scan(
			&c.ID,
			&c.WorkspaceID,
			&c.DecisionID,
			&c.AnchorKind,
			&c.AnchorID,
			&c.Payload,
			&c.Status,
			&c.Attempts,
			&c.Verdict,
			&c.CreatedAt,
			&c.LastAttemptAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan escalation case", "error", err)
			return nil, fmt.Errorf("failed to scan escalation case: %w", err)
		}
		cases = append(cases, &c)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over escalation cases", "error", err)
		return nil, fmt.Errorf("error iterating over escalation cases: %w", err)
	}

	return cases, nil
}

// GetByDecisionID retrieves the case queued for one decision.
// Returns ErrCaseNotFound if the decision was never escalated.
func (r *EscalationRepository) GetByDecisionID(ctx context.Context, decisionID uuid.UUID) (*escalation.Case, error) {
	query := `
		SELECT id, workspace_id, decision_id, anchor_kind, anchor_id, payload, status, attempts, verdict, created_at, last_attempt_at
		FROM escalation_queue
		WHERE decision_id = $1
	`

	var c escalation.Case
	err := r.querier.QueryRow(ctx, query, decisionID).Scan(
		&c.ID,
		&c.WorkspaceID,
		&c.DecisionID,
		&c.AnchorKind,
		&c.AnchorID,
		&c.Payload,
		&c.Status,
		&c.Attempts,
		&c.Verdict,
		&c.CreatedAt,
		&c.LastAttemptAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escalation.ErrCaseNotFound{DecisionID: decisionID}
		}
		r.logger.Error("Failed to get escalation case by decision ID",
			"decision_id", decisionID.String(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to get escalation case by decision ID: %w", err)
	}

	return &c, nil
}

// IncrementAttempts increments the retry counter and updates last attempt time.
// This is used for tracking failed investigation attempts and bounding retries.
func (r *EscalationRepository) IncrementAttempts(ctx context.Context, id int64) error {
	query := `
		UPDATE escalation_queue
		SET attempts = attempts + 1, last_attempt_at = $1
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to increment escalation attempts",
			"id", id,
			"error", err,
		)
		return fmt.Errorf("failed to increment escalation attempts: %w", err)
	}

	if result.RowsAffected() == 0 {
		return escalation.ErrCaseNotFound{ID: id}
	}

	return nil
}

// UpdateStatus updates the case status and last attempt timestamp.
// Returns ErrCaseNotFound if the case doesn't exist.
func (r *EscalationRepository) UpdateStatus(ctx context.Context, id int64, status shared.EscalationStatus) error {
	query := `
		UPDATE escalation_queue
		SET status = $1, last_attempt_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, status, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to update escalation case status",
			"id", id,
			"status", string(status),
			"error", err,
		)
		return fmt.Errorf("failed to update escalation case status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return escalation.ErrCaseNotFound{ID: id}
	}

	return nil
}

// Requeue puts a failed case back in line for the poller, resetting its
// attempt budget. Only failed cases are eligible; requeueing a pending or
// resolved case reports not found.
func (r *EscalationRepository) Requeue(ctx context.Context, id int64) error {
	query := `
		UPDATE escalation_queue
		SET status = $1, attempts = 0, last_attempt_at = NULL
		WHERE id = $2 AND status = $3
	`

	result, err := r.querier.Exec(ctx, query, shared.EscalationStatusPending, id, shared.EscalationStatusFailed)
	if err != nil {
		r.logger.Error("Failed to requeue escalation case",
			"id", id,
			"error", err,
		)
		return fmt.Errorf("failed to requeue escalation case: %w", err)
	}

	if result.RowsAffected() == 0 {
		return escalation.ErrCaseNotFound{ID: id}
	}

	return nil
}

// Resolve stores the investigation verdict and flips the case to RESOLVED in
// one statement so a crash between the two writes cannot strand a case.
func (r *EscalationRepository) Resolve(ctx context.Context, id int64, verdict *escalation.Verdict) error {
	payload, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}

	query := `
		UPDATE escalation_queue
		SET status = $1, verdict = $2, last_attempt_at = $3
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, shared.EscalationStatusResolved, payload, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to resolve escalation case",
			"id", id,
			"error", err,
		)
		return fmt.Errorf("failed to resolve escalation case: %w", err)
	}

	if result.RowsAffected() == 0 {
		return escalation.ErrCaseNotFound{ID: id}
	}

	return nil
}
