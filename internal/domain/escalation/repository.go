package escalation

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// Repository defines escalation case queue operations
type Repository interface {
	Create(ctx context.Context, c *Case) error
	GetPending(ctx context.Context, limit int) ([]*Case, error)
	GetByDecisionID(ctx context.Context, decisionID uuid.UUID) (*Case, error)
	IncrementAttempts(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, status shared.EscalationStatus) error

	// Requeue puts a failed case back in line with its attempt budget reset
	Requeue(ctx context.Context, id int64) error

	// Resolve stores the verdict and flips the case to RESOLVED in one statement
	Resolve(ctx context.Context, id int64, verdict *Verdict) error
	WithTx(tx pgx.Tx) Repository
}

// ErrCaseNotFound indicates a missing escalation case, addressed either by
// its queue id or by the decision it belongs to
type ErrCaseNotFound struct {
	ID         int64
	DecisionID uuid.UUID
}

func (e ErrCaseNotFound) Error() string {
	if e.DecisionID != uuid.Nil {
		return "escalation case not found for decision: " + e.DecisionID.String()
	}
	return "escalation case not found: " + strconv.FormatInt(e.ID, 10)
}

// ErrEscalationTimeout indicates the investigation agent exceeded its deadline.
// Non-fatal: callers fall back to the pre-escalation no_match outcome.
type ErrEscalationTimeout struct {
	Elapsed time.Duration
}

func (e ErrEscalationTimeout) Error() string {
	return "escalation timed out after " + e.Elapsed.String()
}

// ErrInvalidVerdictReference indicates a verdict referenced an identifier
// outside the candidate set it was shown. Such verdicts are discarded.
type ErrInvalidVerdictReference struct {
	ID uuid.UUID
}

func (e ErrInvalidVerdictReference) Error() string {
	return "verdict references an id outside the candidate set: " + e.ID.String()
}
