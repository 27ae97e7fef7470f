package matching

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
)

// Raw sub-score caps. The five signals sum to at most rawScale, which
// normalizes to the 0-100 confidence the decision policy consumes.
const (
	referenceExact     = 40
	referenceSubstring = 30
	referenceFuzzy     = 25

	amountExact         = 35
	amountFeeAdjusted   = 30
	amountCleanFraction = 25
	amountApproximate   = 20
	amountPartial       = 15

	identityLiteral          = 25
	identityFuzzyStrong      = 22
	identityFuzzyWeak        = 15
	identityPatternBoth      = 20
	identityPatternKeyword   = 18
	identityPatternProcessor = 15

	timeNearDue    = 20
	timeCloseDue   = 15
	timeWindow     = 10
	timeLate       = 5
	timeAdvance    = 10
	timeIssueClose = 15
	timeIssueNear  = 10
	timeIssueFar   = 5

	contextUnique    = 5
	contextDuplicate = -5
	contextTypical   = 3
	contextNoHistory = -2
	contextMax       = 10

	rawScale = 130
)

// cleanFractions are the payment/remaining ratios treated as deliberate
// partial payments rather than coincidence
var cleanFractions = []decimal.Decimal{
	decimal.New(5, -1),                        // 1/2
	decimal.New(1, 0).Div(decimal.New(3, 0)),  // 1/3
	decimal.New(25, -2),                       // 1/4
	decimal.New(2, -1),                        // 1/5
}

// Scorer computes per-candidate match signals. It holds no mutable state and
// produces identical output for identical inputs.
type Scorer struct {
	cfg *Config
}

func NewScorer(cfg *Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// ScoreForTransaction scores one candidate document set against a transaction anchor
func (s *Scorer) ScoreForTransaction(txn *transaction.Transaction, cand *Candidate, pattern *vendorpattern.Pattern, stats *PoolStats) (decision.Signals, []string) {
	return s.score([]*transaction.Transaction{txn}, cand.Documents, cand.Combination, cand.Total(), pattern, stats)
}

// ScoreForDocument scores one candidate transaction set against a document anchor
func (s *Scorer) ScoreForDocument(doc *document.Document, cand *Candidate, pattern *vendorpattern.Pattern, stats *PoolStats) (decision.Signals, []string) {
	return s.score(cand.Transactions, []*document.Document{doc}, cand.Combination, cand.Total(), pattern, stats)
}

// score evaluates the pairing of a transaction set and a document set, where
// one side is always the singleton anchor. itemAmount is the candidate side's
// total, used for the duplicate-amount context check against the pool.
func (s *Scorer) score(txns []*transaction.Transaction, docs []*document.Document, combination bool, itemAmount decimal.Decimal, pattern *vendorpattern.Pattern, stats *PoolStats) (decision.Signals, []string) {
	var (
		sig     decision.Signals
		reasons []string
	)

	payment := decimal.Zero
	for _, t := range txns {
		payment = payment.Add(t.Unallocated())
	}
	target := decimal.Zero
	for _, d := range docs {
		target = target.Add(d.AmountRemaining)
	}

	// Reference, identity and time take the best pair across the sets; a
	// combination is as good as its strongest member on those signals.
	var refReason, idReason, timeReason string
	for _, t := range txns {
		for _, d := range docs {
			if score, reason := s.scoreReference(t, d); score > sig.Reference {
				sig.Reference, refReason = score, reason
			}
			if score, reason := s.scoreIdentity(t.Description, d.CounterpartyName, pattern); score > sig.Identity {
				sig.Identity, idReason = score, reason
			}
			if score, advance, reason := s.scoreTime(t.Date, d); score > sig.Time {
				sig.Time, sig.AdvancePayment, timeReason = score, advance, reason
			}
		}
	}

	var amtReason string
	sig.Amount, sig.AmountType, sig.Processor, amtReason = s.scoreAmount(payment, target, combination, len(txns)+len(docs))

	var ctxReason string
	sig.Context, ctxReason = s.scoreContext(payment, itemAmount, combination, pattern, stats)

	for _, r := range []string{refReason, amtReason, idReason, timeReason, ctxReason} {
		if r != "" {
			reasons = append(reasons, r)
		}
	}

	sig.Total = sig.Reference + sig.Amount + sig.Identity + sig.Time + sig.Context
	sig.Confidence = int(math.Round(float64(sig.Total) * 100 / rawScale))
	return sig, reasons
}

func (s *Scorer) scoreReference(txn *transaction.Transaction, doc *document.Document) (int, string) {
	docNum := NormalizeReference(doc.DocumentNumber)
	if len(docNum) < 3 {
		return 0, ""
	}

	tokens := ReferenceTokens(txn.Description, txn.Reference)
	for _, tok := range tokens {
		if tok == docNum {
			return referenceExact, fmt.Sprintf("reference %q matches document number %q", tok, doc.DocumentNumber)
		}
	}

	squashed := NormalizeReference(txn.Description)
	if strings.Contains(squashed, docNum) {
		return referenceSubstring, fmt.Sprintf("description contains document number %q", doc.DocumentNumber)
	}
	for _, tok := range tokens {
		if strings.Contains(docNum, tok) {
			return referenceSubstring, fmt.Sprintf("document number %q contains reference %q", doc.DocumentNumber, tok)
		}
	}

	best := 0.0
	bestTok := ""
	for _, tok := range tokens {
		if sim := Similarity(tok, docNum); sim > best {
			best, bestTok = sim, tok
		}
	}
	if best > s.cfg.FuzzyReferenceThreshold {
		return referenceFuzzy, fmt.Sprintf("reference %q is close to document number %q", bestTok, doc.DocumentNumber)
	}
	return 0, ""
}

func (s *Scorer) scoreAmount(payment, target decimal.Decimal, combination bool, itemCount int) (int, shared.AmountMatchType, string, string) {
	if !payment.IsPositive() || !target.IsPositive() {
		return 0, shared.AmountMatchNone, "", ""
	}
	diff := payment.Sub(target).Abs()

	if combination {
		// Sets were built by the subset-sum search; grade how tight the sum is
		if diff.LessThanOrEqual(s.cfg.AmountTolerance) {
			return amountExact, shared.AmountMatchSum, "", fmt.Sprintf("%d amounts sum exactly to %s", itemCount-1, target.StringFixed(2))
		}
		if diff.LessThanOrEqual(s.cfg.Combination.Tolerance) {
			return amountFeeAdjusted, shared.AmountMatchSum, "", fmt.Sprintf("%d amounts sum to %s within tolerance", itemCount-1, target.StringFixed(2))
		}
		return 0, shared.AmountMatchNone, "", ""
	}

	if diff.LessThanOrEqual(s.cfg.AmountTolerance) {
		return amountExact, shared.AmountMatchExact, "", fmt.Sprintf("amount %s matches the open amount exactly", payment.StringFixed(2))
	}

	one := decimal.New(1, 0)
	for _, model := range s.cfg.FeeModels {
		expected := target.Mul(one.Sub(model.Percentage)).Sub(model.Fixed)
		if payment.Sub(expected).Abs().LessThanOrEqual(s.cfg.FeeTolerance) {
			return amountFeeAdjusted, shared.AmountMatchFeeAdjusted, model.Name,
				fmt.Sprintf("amount %s matches %s less %s processing fees", payment.StringFixed(2), target.StringFixed(2), model.Name)
		}
	}

	larger := payment
	if target.GreaterThan(larger) {
		larger = target
	}
	if diff.Div(larger).LessThan(s.cfg.ApproximateRelDiff) {
		return amountApproximate, shared.AmountMatchApproximate, "",
			fmt.Sprintf("amount %s is within %s%% of the open amount", payment.StringFixed(2), s.cfg.ApproximateRelDiff.Mul(decimal.New(100, 0)).StringFixed(0))
	}

	if payment.LessThan(target) {
		ratio := payment.Div(target)
		if ratio.GreaterThanOrEqual(s.cfg.MinPartialRatio) {
			for _, fraction := range cleanFractions {
				if ratio.Sub(fraction).Abs().LessThanOrEqual(s.cfg.CleanFractionTolerance) {
					return amountCleanFraction, shared.AmountMatchPartial, "",
						fmt.Sprintf("amount %s is a clean fraction of the open %s", payment.StringFixed(2), target.StringFixed(2))
				}
			}
			return amountPartial, shared.AmountMatchPartial, "",
				fmt.Sprintf("amount %s partially covers the open %s", payment.StringFixed(2), target.StringFixed(2))
		}
	}

	return 0, shared.AmountMatchNone, "", ""
}

func (s *Scorer) scoreIdentity(description, counterparty string, pattern *vendorpattern.Pattern) (int, string) {
	normDesc := NormalizeText(description)
	normCp := NormalizeText(counterparty)

	if normCp != "" && strings.Contains(normDesc, normCp) {
		return identityLiteral, fmt.Sprintf("description names %q", counterparty)
	}

	sim := TokenSetSimilarity(SignificantTokens(counterparty), Tokenize(description))
	if sim > s.cfg.FuzzyIdentityStrong {
		return identityFuzzyStrong, fmt.Sprintf("description closely resembles %q", counterparty)
	}
	if sim > s.cfg.FuzzyIdentityWeak {
		return identityFuzzyWeak, fmt.Sprintf("description loosely resembles %q", counterparty)
	}

	if pattern != nil && pattern.MatchCount > 0 {
		keyword := false
		for _, tok := range Tokenize(description) {
			if pattern.HasKeyword(tok) {
				keyword = true
				break
			}
		}
		alias := pattern.HasAlias(description)
		fingerprint := pattern.Processor != "" && strings.Contains(normDesc, NormalizeText(pattern.Processor))

		switch {
		case (keyword || alias) && fingerprint:
			return identityPatternBoth, fmt.Sprintf("matches learned keywords and the %s fingerprint for %q", pattern.Processor, counterparty)
		case keyword || alias:
			return identityPatternKeyword, fmt.Sprintf("matches learned keywords for %q", counterparty)
		case fingerprint:
			return identityPatternProcessor, fmt.Sprintf("carries the usual %s fingerprint for %q", pattern.Processor, counterparty)
		}
	}

	return 0, ""
}

func (s *Scorer) scoreTime(txDate time.Time, doc *document.Document) (int, bool, string) {
	sinceIssue := daysBetween(doc.IssueDate, txDate)
	if sinceIssue < 0 {
		// Paid before the document was issued: a deposit or advance when close
		if -sinceIssue <= 30 {
			return timeAdvance, true, fmt.Sprintf("paid %d days before issue, likely an advance", -sinceIssue)
		}
		return 0, false, ""
	}

	if doc.DueDate != nil {
		delta := daysBetween(*doc.DueDate, txDate)
		abs := delta
		if abs < 0 {
			abs = -abs
		}
		switch {
		case abs <= 3:
			return timeNearDue, false, "paid within 3 days of the due date"
		case abs <= 7:
			return timeCloseDue, false, "paid within a week of the due date"
		case delta >= -14 && delta <= 30:
			return timeWindow, false, "paid in the normal settlement window"
		case delta > 30 && delta <= 60:
			return timeLate, false, fmt.Sprintf("paid %d days late", delta)
		default:
			return 0, false, ""
		}
	}

	switch {
	case sinceIssue <= 7:
		return timeIssueClose, false, "paid within a week of issue"
	case sinceIssue <= 30:
		return timeIssueNear, false, "paid within a month of issue"
	case sinceIssue <= 60:
		return timeIssueFar, false, "paid within two months of issue"
	}
	return 0, false, ""
}

// scoreContext can go negative while accumulating and is clamped to [0, contextMax]
func (s *Scorer) scoreContext(payment, itemAmount decimal.Decimal, combination bool, pattern *vendorpattern.Pattern, stats *PoolStats) (int, string) {
	score := 0
	var notes []string

	if !combination {
		if stats.UniqueAmount(itemAmount) {
			score += contextUnique
		} else {
			score += contextDuplicate
			notes = append(notes, "several open items share this amount")
		}
	}

	if pattern != nil && pattern.MatchCount > 0 {
		if pattern.HasTypicalAmount(payment, s.cfg.TypicalAmountTolerance) {
			score += contextTypical
			notes = append(notes, "amount is typical for this counterparty")
		}
	} else {
		score += contextNoHistory
	}

	if score < 0 {
		score = 0
	}
	if score > contextMax {
		score = contextMax
	}
	return score, strings.Join(notes, "; ")
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
