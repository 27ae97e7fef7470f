package decision

import (
	"context"

	"github.com/google/uuid"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// HistoryFilter narrows decision history queries
type HistoryFilter struct {
	Action shared.MatchAction // empty matches all actions
	Limit  int
	Offset int
}

// Repository defines decision audit persistence operations
type Repository interface {
	Create(ctx context.Context, rec *Record) error

	// GetByDecisionID retrieves one decision record. Scan request ids double as
	// decision ids, so this is also the processor's idempotency probe.
	GetByDecisionID(ctx context.Context, decisionID uuid.UUID) (*Record, error)

	// ListByAnchor returns the decision history for one anchor, newest first
	ListByAnchor(ctx context.Context, workspaceID uuid.UUID, kind shared.AnchorKind, anchorID uuid.UUID, limit int) ([]*Record, error)

	// ListByWorkspace returns paginated decision history, newest first
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, filter HistoryFilter) ([]*Record, error)

	CountByWorkspace(ctx context.Context, workspaceID uuid.UUID) (int64, error)

	// SetEscalationOutcome attaches an investigation verdict to an existing decision
	SetEscalationOutcome(ctx context.Context, decisionID uuid.UUID, outcome *EscalationOutcome) error
}

// ErrDecisionNotFound indicates a missing decision record
type ErrDecisionNotFound struct {
	DecisionID uuid.UUID
}

func (e ErrDecisionNotFound) Error() string {
	return "decision not found: " + e.DecisionID.String()
}

// Is implements the errors.Is interface for ErrDecisionNotFound
func (e ErrDecisionNotFound) Is(target error) bool {
	t, ok := target.(ErrDecisionNotFound)
	if !ok {
		return false
	}
	// A target with an empty DecisionID matches any ErrDecisionNotFound
	if t.DecisionID == uuid.Nil {
		return true
	}
	return e.DecisionID == t.DecisionID
}

// ErrDuplicateDecision indicates decision id uniqueness violation. Scan
// request ids double as decision ids, so a duplicate means the scan was
// already processed.
type ErrDuplicateDecision struct {
	DecisionID uuid.UUID
}

func (e ErrDuplicateDecision) Error() string {
	return "duplicate decision record: " + e.DecisionID.String()
}

// Is implements the errors.Is interface for ErrDuplicateDecision
func (e ErrDuplicateDecision) Is(target error) bool {
	t, ok := target.(ErrDuplicateDecision)
	if !ok {
		return false
	}
	if t.DecisionID == uuid.Nil {
		return true
	}
	return e.DecisionID == t.DecisionID
}
