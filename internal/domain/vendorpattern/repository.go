package vendorpattern

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines vendor pattern persistence operations. Writes use
// compare-and-update per (workspace, counterparty) key so concurrent learners
// on different counterparties never contend.
type Repository interface {
	Create(ctx context.Context, p *Pattern) error

	// GetByCounterparty looks a pattern up by its normalized key.
	// Returns nil, nil when the counterparty has no history yet.
	GetByCounterparty(ctx context.Context, workspaceID uuid.UUID, counterparty string) (*Pattern, error)

	// Update writes the pattern using optimistic locking on the version column
	Update(ctx context.Context, p *Pattern) error
	WithTx(tx pgx.Tx) Repository
}

// ErrPatternNotFound indicates a missing vendor pattern
type ErrPatternNotFound struct {
	Counterparty string
}

func (e ErrPatternNotFound) Error() string {
	return "vendor pattern not found for counterparty: " + e.Counterparty
}
