package decision

import (
	"time"

	"github.com/google/uuid"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// EngineVersion tags decision records with the scoring revision that produced
// them, so historical records stay interpretable after tuning.
const EngineVersion = "2025.3"

// Signals holds the per-candidate sub-scores the scorer produced. Raw scores
// sum to Total on a 0-130 scale; Confidence is the 0-100 normalization.
type Signals struct {
	Reference      int                    `bson:"reference" json:"reference"`
	Amount         int                    `bson:"amount" json:"amount"`
	AmountType     shared.AmountMatchType `bson:"amount_type" json:"amount_type"`
	Processor      string                 `bson:"processor,omitempty" json:"processor,omitempty"` // set for fee_adjusted matches
	Identity       int                    `bson:"identity" json:"identity"`
	Time           int                    `bson:"time" json:"time"`
	AdvancePayment bool                   `bson:"advance_payment,omitempty" json:"advance_payment,omitempty"`
	Context        int                    `bson:"context" json:"context"`
	Total          int                    `bson:"total" json:"total"`
	Confidence     int                    `bson:"confidence" json:"confidence"`
}

// CandidateItem is one member of a scored candidate with the amount the
// engine would allocate to it. Items are documents when the anchor is a
// transaction and transactions when the anchor is a document.
type CandidateItem struct {
	ID     uuid.UUID `bson:"id" json:"id"`
	Amount string    `bson:"amount" json:"amount"`
}

// ScoredCandidate is a singleton or combination candidate with its signals.
// Amounts are decimal strings to keep the record storage-agnostic.
type ScoredCandidate struct {
	Items       []CandidateItem `bson:"items" json:"items"`
	Amount      string          `bson:"amount" json:"amount"` // candidate total
	Combination bool            `bson:"combination,omitempty" json:"combination,omitempty"`
	Signals     Signals         `bson:"signals" json:"signals"`
	Reasons     []string        `bson:"reasons" json:"reasons"`
}

// EscalationOutcome summarizes an investigation verdict applied to a decision
type EscalationOutcome struct {
	Status          string    `bson:"status" json:"status"`
	Confidence      int       `bson:"confidence" json:"confidence"`
	Explanation     string    `bson:"explanation" json:"explanation"`
	SuggestedAction string    `bson:"suggested_action" json:"suggested_action"`
	ResolvedAt      time.Time `bson:"resolved_at" json:"resolved_at"`
}

// Record is the persisted audit trail of one engine decision for one anchor.
// Everything a reviewer needs to reconstruct the outcome is denormalized here.
type Record struct {
	DecisionID    uuid.UUID             `bson:"decision_id" json:"decision_id"`
	WorkspaceID   uuid.UUID             `bson:"workspace_id" json:"workspace_id"`
	AnchorKind    shared.AnchorKind     `bson:"anchor_kind" json:"anchor_kind"`
	AnchorID      uuid.UUID             `bson:"anchor_id" json:"anchor_id"`
	Action        shared.MatchAction    `bson:"action" json:"action"`
	Best          *ScoredCandidate      `bson:"best,omitempty" json:"best,omitempty"`
	Alternatives  []ScoredCandidate     `bson:"alternatives,omitempty" json:"alternatives,omitempty"`
	Status        shared.DecisionStatus `bson:"status" json:"status"`
	FailureReason string                `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	CorrelationID string                `bson:"correlation_id,omitempty" json:"correlation_id,omitempty"`
	EngineVersion string                `bson:"engine_version" json:"engine_version"`
	Escalation    *EscalationOutcome    `bson:"escalation,omitempty" json:"escalation,omitempty"`
	DecidedAt     time.Time             `bson:"decided_at" json:"decided_at"`
}
