package escalation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// Case queues one uncertain anchor for the external investigation agent.
// The payload snapshots the full request so the poller can run it without
// re-reading engine state, and attempts are tracked for bounded retry.
type Case struct {
	ID            int64                   `json:"id"`
	WorkspaceID   uuid.UUID               `json:"workspace_id"`
	DecisionID    uuid.UUID               `json:"decision_id"`
	AnchorKind    shared.AnchorKind       `json:"anchor_kind"`
	AnchorID      uuid.UUID               `json:"anchor_id"`
	Payload       json.RawMessage         `json:"payload"`
	Status        shared.EscalationStatus `json:"status"`
	Attempts      int                     `json:"attempts"`
	Verdict       json.RawMessage         `json:"verdict,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	LastAttemptAt *time.Time              `json:"last_attempt_at,omitempty"`
}

// NewCase builds a pending case from an investigation request
func NewCase(req *InvestigationRequest) (*Case, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	return &Case{
		WorkspaceID: req.WorkspaceID,
		DecisionID:  req.DecisionID,
		AnchorKind:  req.AnchorKind,
		AnchorID:    req.AnchorID,
		Payload:     payload,
		Status:      shared.EscalationStatusPending,
		Attempts:    0,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Request extracts the investigation request from the payload
func (c *Case) Request() (*InvestigationRequest, error) {
	var req InvestigationRequest
	if err := json.Unmarshal(c.Payload, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// AnchorSummary describes the item under investigation
type AnchorSummary struct {
	Kind         shared.AnchorKind `json:"kind"`
	ID           uuid.UUID         `json:"id"`
	Date         time.Time         `json:"date"`
	Amount       string            `json:"amount"`
	Currency     string            `json:"currency"`
	Description  string            `json:"description,omitempty"`
	Counterparty string            `json:"counterparty,omitempty"`
	Reference    string            `json:"reference,omitempty"`
}

// PatternSummary is the slice of a vendor pattern worth showing the agent
type PatternSummary struct {
	Counterparty     string   `json:"counterparty"`
	Keywords         []string `json:"keywords,omitempty"`
	Aliases          []string `json:"aliases,omitempty"`
	Processor        string   `json:"processor,omitempty"`
	TypicalDelayDays float64  `json:"typical_delay_days,omitempty"`
	MatchCount       int      `json:"match_count"`
	LearningScore    float64  `json:"learning_score"`
}

// HistoryEntry is one recent confirmed match for the same counterparty
type HistoryEntry struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	DocumentID    uuid.UUID `json:"document_id"`
	Amount        string    `json:"amount"`
	Method        string    `json:"method"`
	AllocatedAt   time.Time `json:"allocated_at"`
}

// InvestigationRequest packages everything the external reasoning agent gets
// to see about one uncertain case
type InvestigationRequest struct {
	WorkspaceID uuid.UUID                  `json:"workspace_id"`
	DecisionID  uuid.UUID                  `json:"decision_id"`
	AnchorKind  shared.AnchorKind          `json:"anchor_kind"`
	AnchorID    uuid.UUID                  `json:"anchor_id"`
	Anchor      AnchorSummary              `json:"anchor"`
	Candidates  []decision.ScoredCandidate `json:"candidates"`
	Pattern     *PatternSummary            `json:"vendor_pattern,omitempty"`
	History     []HistoryEntry             `json:"recent_history,omitempty"`
}

// CandidateItemIDs collects every item id across the candidate list, the
// universe a verdict is allowed to reference
func (r *InvestigationRequest) CandidateItemIDs() map[uuid.UUID]struct{} {
	ids := make(map[uuid.UUID]struct{})
	for _, c := range r.Candidates {
		for _, item := range c.Items {
			ids[item.ID] = struct{}{}
		}
	}
	return ids
}

// Verdict is the structured answer from the investigation agent. Matched ids
// must come from the original candidate set; the adapter rejects anything else.
type Verdict struct {
	Status          string      `json:"status"`
	Confidence      int         `json:"confidence"`
	Explanation     string      `json:"explanation"`
	SuggestedAction string      `json:"suggested_action"`
	MatchedItemIDs  []uuid.UUID `json:"matched_item_ids,omitempty"`
}
