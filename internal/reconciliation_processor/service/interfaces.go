package service

import (
	"context"

	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
	"github.com/reconcilia-matching-engine/internal/matching"
)

// ProcessingService defines the interface for processing scan requests.
type ProcessingService interface {
	ProcessScan(ctx context.Context, request *shared.ScanRequest) error
}

// ScanValidator validates scan requests before processing
type ScanValidator interface {
	Validate(ctx context.Context, request *shared.ScanRequest) error
	CheckIdempotency(ctx context.Context, request *shared.ScanRequest) (bool, error)
}

// MatchInput is the loaded state a scan runs against. Exactly one anchor is
// set: Transaction with DocumentPool for transaction scans, Document with
// TransactionPool for document scans. Patterns is keyed by normalized
// counterparty.
type MatchInput struct {
	Transaction     *transaction.Transaction
	Document        *document.Document
	TransactionPool []*transaction.Transaction
	DocumentPool    []*document.Document
	Patterns        map[string]*vendorpattern.Pattern
}

// AnchorLoader fetches the anchor, its candidate pool and the vendor patterns
// the scorer needs
type AnchorLoader interface {
	Load(ctx context.Context, request *shared.ScanRequest) (*MatchInput, error)
}

// DecisionRecorder persists the engine outcome as an audit record
type DecisionRecorder interface {
	RecordOutcome(ctx context.Context, request *shared.ScanRequest, outcome *matching.Outcome) (*decision.Record, error)
}

// AllocationApplier confirms the winning candidate's allocations through the
// ledger when the policy says auto_match
type AllocationApplier interface {
	Apply(ctx context.Context, request *shared.ScanRequest, best *decision.ScoredCandidate) error
}

// EscalationManager queues uncertain outcomes for the investigation agent
type EscalationManager interface {
	ShouldEscalate(outcome *matching.Outcome) bool
	Enqueue(ctx context.Context, request *shared.ScanRequest, input *MatchInput, outcome *matching.Outcome) error
}

// FailureRecorder handles recording failed scans
type FailureRecorder interface {
	RecordFailure(ctx context.Context, request *shared.ScanRequest, reason shared.FailureReason, detail string) error
}
