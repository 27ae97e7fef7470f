package learner

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
	"github.com/reconcilia-matching-engine/internal/matching"
)

// Learning score increments. Manual confirmations teach more than accepted
// machine suggestions, which mostly confirm what is already known.
const (
	manualIncrement    = 0.10
	assistedIncrement  = 0.04
	maxLearningScore   = 1.0
	feeDetectTolerance = 1.0 // dollars
)

var typicalAmountTolerance = decimal.New(1, 0) // $1.00

// cleanRatioTolerance bounds how far a payment/total ratio may sit from 1/n
// before it stops looking like an installment
var cleanRatioTolerance = decimal.New(2, -2) // 2%

// mergeConfirmation folds one confirmed (transaction, document) pairing into
// the pattern: union new keywords, detect the processor once, extend the delay
// window and its running stats, record the amount as typical and bump the
// learning score. Mutates p in place and bumps its lock version.
func mergeConfirmation(p *vendorpattern.Pattern, txn *transaction.Transaction, doc *document.Document, method shared.AllocationMethod, feeModels []matching.FeeModel) {
	for _, tok := range matching.SignificantTokens(txn.Description) {
		if p.IsExcluded(tok) || p.HasKeyword(tok) {
			continue
		}
		if len(p.Keywords) >= vendorpattern.MaxKeywords {
			break
		}
		p.Keywords = append(p.Keywords, tok)
	}

	if p.Processor == "" {
		if name, fee := detectProcessor(txn, doc, feeModels); name != "" {
			p.Processor = name
			p.TypicalFee = fee
		}
	}

	delay := float64(daysBetween(doc.IssueDate, txn.Date))
	p.RecentDelays = append(p.RecentDelays, delay)
	if len(p.RecentDelays) > vendorpattern.MaxRecentDelays {
		p.RecentDelays = p.RecentDelays[len(p.RecentDelays)-vendorpattern.MaxRecentDelays:]
	}
	if mean, err := stats.Mean(p.RecentDelays); err == nil {
		p.TypicalDelayDays = mean
	}
	if stddev, err := stats.StandardDeviation(p.RecentDelays); err == nil {
		p.DelayStddevDays = stddev
	}

	if !p.HasTypicalAmount(txn.Amount, typicalAmountTolerance) {
		p.TypicalAmounts = append(p.TypicalAmounts, txn.Amount)
		if len(p.TypicalAmounts) > vendorpattern.MaxTypicalAmounts {
			p.TypicalAmounts = p.TypicalAmounts[len(p.TypicalAmounts)-vendorpattern.MaxTypicalAmounts:]
		}
	}

	if n, ok := installmentDivisor(txn.Amount, doc.Total); ok {
		p.UsesInstallments = true
		p.InstallmentHint = fmt.Sprintf("%dx", n)
	}

	p.MatchCount++
	increment := assistedIncrement
	if method == shared.AllocationMethodManual {
		increment = manualIncrement
	}
	p.LearningScore += increment
	if p.LearningScore > maxLearningScore {
		p.LearningScore = maxLearningScore
	}

	p.Version++
	p.UpdatedAt = time.Now().UTC()
}

// mergeRejection dissociates the transaction's wording from the counterparty.
// Only tokens that previously counted as keywords are excluded; confirmed
// history (counts, delays, amounts) is never decremented by a rejection.
// Returns false when the rejection taught nothing and no write is needed.
func mergeRejection(p *vendorpattern.Pattern, txn *transaction.Transaction) bool {
	changed := false
	for _, tok := range matching.SignificantTokens(txn.Description) {
		if !p.HasKeyword(tok) {
			continue
		}
		if len(p.ExcludedKeywords) >= vendorpattern.MaxExcluded {
			break
		}
		p.ExcludedKeywords = append(p.ExcludedKeywords, tok)
		changed = true
	}

	if changed {
		p.Version++
		p.UpdatedAt = time.Now().UTC()
	}
	return changed
}

// detectProcessor infers a payment processor from the fee relation between
// the banked amount and the document total, falling back to the processor's
// name appearing in the description.
func detectProcessor(txn *transaction.Transaction, doc *document.Document, feeModels []matching.FeeModel) (string, decimal.Decimal) {
	one := decimal.New(1, 0)
	tolerance := decimal.NewFromFloat(feeDetectTolerance)
	for _, model := range feeModels {
		expected := doc.Total.Mul(one.Sub(model.Percentage)).Sub(model.Fixed)
		if txn.Amount.Sub(expected).Abs().LessThanOrEqual(tolerance) {
			return model.Name, model.Percentage
		}
	}

	normDesc := matching.NormalizeText(txn.Description)
	for _, model := range feeModels {
		if model.Name != "" && containsToken(normDesc, model.Name) {
			return model.Name, model.Percentage
		}
	}
	return "", decimal.Zero
}

// installmentDivisor reports whether the payment is a clean 1/n of the
// document total for n in 2..5
func installmentDivisor(amount, total decimal.Decimal) (int, bool) {
	if !amount.IsPositive() || !total.IsPositive() || amount.GreaterThanOrEqual(total) {
		return 0, false
	}
	ratio := amount.Div(total)
	one := decimal.New(1, 0)
	for n := 2; n <= 5; n++ {
		fraction := one.Div(decimal.New(int64(n), 0))
		if ratio.Sub(fraction).Abs().LessThanOrEqual(cleanRatioTolerance) {
			return n, true
		}
	}
	return 0, false
}

func containsToken(normalized, token string) bool {
	for _, tok := range matching.Tokenize(normalized) {
		if tok == token {
			return true
		}
	}
	return false
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
