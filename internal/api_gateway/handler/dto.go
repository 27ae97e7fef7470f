package handler

import (
	"time"

	"github.com/reconcilia-matching-engine/internal/domain/allocation"
	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
)

// ScanRequestBody asks for an asynchronous reconciliation scan of one anchor
type ScanRequestBody struct {
	WorkspaceID string `json:"workspace_id" binding:"required,uuid"`
	AnchorKind  string `json:"anchor_kind" binding:"required,oneof=transaction document"`
	AnchorID    string `json:"anchor_id" binding:"required,uuid"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// ConfirmAllocationRequest links part of a bank transaction to a document.
// Amount is a decimal string so monetary values survive JSON intact.
type ConfirmAllocationRequest struct {
	WorkspaceID   string `json:"workspace_id" binding:"required,uuid"`
	TransactionID string `json:"transaction_id" binding:"required,uuid"`
	DocumentID    string `json:"document_id" binding:"required,uuid"`
	Amount        string `json:"amount" binding:"required"`
	Method        string `json:"method,omitempty" binding:"omitempty,oneof=manual auto ai_suggested"`
	Confidence    int    `json:"confidence,omitempty" binding:"omitempty,min=0,max=100"`
}

// RejectSuggestionRequest records that a reviewer dismissed a suggested pair
type RejectSuggestionRequest struct {
	WorkspaceID   string `json:"workspace_id" binding:"required,uuid"`
	TransactionID string `json:"transaction_id" binding:"required,uuid"`
	DocumentID    string `json:"document_id" binding:"required,uuid"`
}

// DecisionHistoryParams filters the decision history endpoint
type DecisionHistoryParams struct {
	WorkspaceID string `form:"workspace_id" binding:"required,uuid"`
	Action      string `form:"action" binding:"omitempty,oneof=auto_match present_options suggest suggest_with_warning no_match"`
	Page        int    `form:"page,default=1" binding:"min=1"`
	PerPage     int    `form:"per_page,default=20" binding:"min=1,max=100"`
}

// AllocationResponse represents a confirmed allocation in API responses
type AllocationResponse struct {
	ID            string `json:"id"`
	WorkspaceID   string `json:"workspace_id"`
	TransactionID string `json:"transaction_id"`
	DocumentID    string `json:"document_id"`
	Amount        string `json:"amount"`
	Method        string `json:"method"`
	Confidence    int    `json:"confidence"`
	AllocatedAt   string `json:"allocated_at"`
}

// CandidateItemResponse is one member of a scored candidate
type CandidateItemResponse struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
}

// CandidateResponse is a scored candidate with its signal breakdown
type CandidateResponse struct {
	Items       []CandidateItemResponse `json:"items"`
	Amount      string                  `json:"amount"`
	Combination bool                    `json:"combination,omitempty"`
	Signals     decision.Signals        `json:"signals"`
	Reasons     []string                `json:"reasons"`
}

// EscalationOutcomeResponse summarizes an AI investigation verdict
type EscalationOutcomeResponse struct {
	Status          string `json:"status"`
	Confidence      int    `json:"confidence"`
	Explanation     string `json:"explanation"`
	SuggestedAction string `json:"suggested_action"`
	ResolvedAt      string `json:"resolved_at"`
}

// DecisionResponse represents one matching decision in API responses
type DecisionResponse struct {
	DecisionID    string                     `json:"decision_id"`
	WorkspaceID   string                     `json:"workspace_id"`
	AnchorKind    string                     `json:"anchor_kind"`
	AnchorID      string                     `json:"anchor_id"`
	Action        string                     `json:"action"`
	Confidence    int                        `json:"confidence"`
	Best          *CandidateResponse         `json:"best,omitempty"`
	Alternatives  []CandidateResponse        `json:"alternatives,omitempty"`
	Status        string                     `json:"status"`
	FailureReason string                     `json:"failure_reason,omitempty"`
	EngineVersion string                     `json:"engine_version"`
	Escalation    *EscalationOutcomeResponse `json:"escalation,omitempty"`
	DecidedAt     string                     `json:"decided_at"`
}

// VendorPatternResponse represents learned counterparty behavior
type VendorPatternResponse struct {
	Counterparty     string   `json:"counterparty"`
	DisplayName      string   `json:"display_name"`
	Keywords         []string `json:"keywords,omitempty"`
	Aliases          []string `json:"aliases,omitempty"`
	ExcludedKeywords []string `json:"excluded_keywords,omitempty"`
	Processor        string   `json:"processor,omitempty"`
	TypicalFee       string   `json:"typical_fee"`
	TypicalDelayDays float64  `json:"typical_delay_days"`
	DelayStddevDays  float64  `json:"delay_stddev_days"`
	TypicalAmounts   []string `json:"typical_amounts,omitempty"`
	UsesInstallments bool     `json:"uses_installments,omitempty"`
	InstallmentHint  string   `json:"installment_hint,omitempty"`
	MatchCount       int      `json:"match_count"`
	LearningScore    float64  `json:"learning_score"`
	UpdatedAt        string   `json:"updated_at"`
}

// mapAllocationToResponse maps an allocation entity to its response DTO
func mapAllocationToResponse(a *allocation.PaymentAllocation) AllocationResponse {
	return AllocationResponse{
		ID:            a.ID.String(),
		WorkspaceID:   a.WorkspaceID.String(),
		TransactionID: a.TransactionID.String(),
		DocumentID:    a.DocumentID.String(),
		Amount:        a.Amount.StringFixed(2),
		Method:        string(a.Method),
		Confidence:    a.Confidence,
		AllocatedAt:   a.AllocatedAt.Format(time.RFC3339),
	}
}

// mapDecisionToResponse maps a decision record to its response DTO
func mapDecisionToResponse(rec *decision.Record) DecisionResponse {
	resp := DecisionResponse{
		DecisionID:    rec.DecisionID.String(),
		WorkspaceID:   rec.WorkspaceID.String(),
		AnchorKind:    string(rec.AnchorKind),
		AnchorID:      rec.AnchorID.String(),
		Action:        string(rec.Action),
		Status:        string(rec.Status),
		FailureReason: rec.FailureReason,
		EngineVersion: rec.EngineVersion,
		DecidedAt:     rec.DecidedAt.Format(time.RFC3339),
	}

	if rec.Best != nil {
		best := mapCandidateToResponse(rec.Best)
		resp.Best = &best
		resp.Confidence = rec.Best.Signals.Confidence
	}
	for i := range rec.Alternatives {
		resp.Alternatives = append(resp.Alternatives, mapCandidateToResponse(&rec.Alternatives[i]))
	}
	if rec.Escalation != nil {
		resp.Escalation = &EscalationOutcomeResponse{
			Status:          rec.Escalation.Status,
			Confidence:      rec.Escalation.Confidence,
			Explanation:     rec.Escalation.Explanation,
			SuggestedAction: rec.Escalation.SuggestedAction,
			ResolvedAt:      rec.Escalation.ResolvedAt.Format(time.RFC3339),
		}
	}
	return resp
}

func mapCandidateToResponse(c *decision.ScoredCandidate) CandidateResponse {
	items := make([]CandidateItemResponse, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, CandidateItemResponse{ID: item.ID.String(), Amount: item.Amount})
	}
	return CandidateResponse{
		Items:       items,
		Amount:      c.Amount,
		Combination: c.Combination,
		Signals:     c.Signals,
		Reasons:     c.Reasons,
	}
}

// mapPatternToResponse maps a vendor pattern to its response DTO
func mapPatternToResponse(p *vendorpattern.Pattern) VendorPatternResponse {
	amounts := make([]string, 0, len(p.TypicalAmounts))
	for _, a := range p.TypicalAmounts {
		amounts = append(amounts, a.StringFixed(2))
	}
	return VendorPatternResponse{
		Counterparty:     p.Counterparty,
		DisplayName:      p.DisplayName,
		Keywords:         p.Keywords,
		Aliases:          p.Aliases,
		ExcludedKeywords: p.ExcludedKeywords,
		Processor:        p.Processor,
		TypicalFee:       p.TypicalFee.String(),
		TypicalDelayDays: p.TypicalDelayDays,
		DelayStddevDays:  p.DelayStddevDays,
		TypicalAmounts:   amounts,
		UsesInstallments: p.UsesInstallments,
		InstallmentHint:  p.InstallmentHint,
		MatchCount:       p.MatchCount,
		LearningScore:    p.LearningScore,
		UpdatedAt:        p.UpdatedAt.Format(time.RFC3339),
	}
}
