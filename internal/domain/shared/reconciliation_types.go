package shared

// Direction defines which way money moved on a bank transaction
type Direction string

const (
	DirectionCredit Direction = "credit" // money in
	DirectionDebit  Direction = "debit"  // money out
)

// DocumentKind distinguishes receivables from payables
type DocumentKind string

const (
	DocumentKindInvoice DocumentKind = "invoice"
	DocumentKindBill    DocumentKind = "bill"
)

// KindForDirection returns the document kind a transaction direction settles against.
// Credits pay invoices, debits pay bills.
func KindForDirection(d Direction) DocumentKind {
	if d == DirectionCredit {
		return DocumentKindInvoice
	}
	return DocumentKindBill
}

// DirectionForKind is the inverse mapping, the transaction direction that
// settles a document of the given kind.
func DirectionForKind(k DocumentKind) Direction {
	if k == DocumentKindInvoice {
		return DirectionCredit
	}
	return DirectionDebit
}

// PaymentStatus defines document settlement states
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPartial  PaymentStatus = "partial"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusOverpaid PaymentStatus = "overpaid"
)

// ReconciliationStatus defines transaction-side matching states
type ReconciliationStatus string

const (
	ReconciliationStatusUnmatched ReconciliationStatus = "unmatched"
	ReconciliationStatusPartial   ReconciliationStatus = "partial"
	ReconciliationStatusMatched   ReconciliationStatus = "matched"
)

// AllocationMethod records how an allocation was confirmed
type AllocationMethod string

const (
	AllocationMethodAuto        AllocationMethod = "auto"
	AllocationMethodAISuggested AllocationMethod = "ai_suggested"
	AllocationMethodManual      AllocationMethod = "manual"
)

// MatchAction is the decision policy output for one anchor
type MatchAction string

const (
	MatchActionAutoMatch          MatchAction = "auto_match"
	MatchActionSuggest            MatchAction = "suggest"
	MatchActionPresentOptions     MatchAction = "present_options"
	MatchActionSuggestWithWarning MatchAction = "suggest_with_warning"
	MatchActionNoMatch            MatchAction = "no_match"
)

// AmountMatchType qualifies how a candidate's amount related to the anchor
type AmountMatchType string

const (
	AmountMatchExact       AmountMatchType = "exact"
	AmountMatchFeeAdjusted AmountMatchType = "fee_adjusted"
	AmountMatchPartial     AmountMatchType = "partial"
	AmountMatchSum         AmountMatchType = "sum"
	AmountMatchApproximate AmountMatchType = "approximate"
	AmountMatchNone        AmountMatchType = "none"
)

// AnchorKind identifies which side of a match a scan starts from
type AnchorKind string

const (
	AnchorKindTransaction AnchorKind = "transaction"
	AnchorKindDocument    AnchorKind = "document"
)

// DecisionStatus defines match decision record states
type DecisionStatus string

const (
	DecisionStatusCompleted DecisionStatus = "COMPLETED"
	DecisionStatusFailed    DecisionStatus = "FAILED"
)

// EscalationStatus defines investigation case queue states
type EscalationStatus string

const (
	EscalationStatusPending  EscalationStatus = "PENDING"
	EscalationStatusResolved EscalationStatus = "RESOLVED"
	EscalationStatusFailed   EscalationStatus = "FAILED"
)

// FailureReason defines scan processing failure categories
type FailureReason string

const (
	FailureReasonAnchorNotFound    FailureReason = "ANCHOR_NOT_FOUND"
	FailureReasonInvalidScope      FailureReason = "INVALID_SCOPE"
	FailureReasonInvalidAnchorKind FailureReason = "INVALID_ANCHOR_KIND"
	FailureReasonEngineError       FailureReason = "ENGINE_ERROR"
	FailureReasonUnknownError      FailureReason = "UNKNOWN_ERROR"
)
