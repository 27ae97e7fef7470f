package matching

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
)

// Candidate is a proposed pairing awaiting scoring. Exactly one of Documents
// or Transactions is populated, depending on the anchor side. Singleton
// candidates hold one item; combination candidates hold the subset-sum set.
type Candidate struct {
	Documents    []*document.Document
	Transactions []*transaction.Transaction
	Combination  bool
}

// Total returns the candidate's settled amount: remaining for documents,
// unallocated for transactions
func (c *Candidate) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, d := range c.Documents {
		sum = sum.Add(d.AmountRemaining)
	}
	for _, t := range c.Transactions {
		sum = sum.Add(t.Unallocated())
	}
	return sum
}

// PoolStats carries pool-level aggregates the context signal needs, chiefly
// how often each open amount occurs so duplicate-amount ambiguity is penalized
type PoolStats struct {
	amountCounts map[string]int
}

// UniqueAmount reports whether the amount occurs exactly once in the pool
func (s *PoolStats) UniqueAmount(amount decimal.Decimal) bool {
	if s == nil {
		return false
	}
	return s.amountCounts[amount.StringFixed(2)] == 1
}

// GenerateForTransaction filters the open-document pool down to candidates
// for one transaction anchor: direction-compatible, still-open documents in
// the same currency (unless cross-currency is enabled), as singletons plus
// same-counterparty subset-sum combinations. Pure; no side effects. An empty
// result is a valid outcome, not an error.
func GenerateForTransaction(txn *transaction.Transaction, pool []*document.Document, cfg *Config) ([]Candidate, *PoolStats, error) {
	if txn == nil || txn.WorkspaceID == uuid.Nil {
		return nil, nil, shared.ErrInvalidScope{Field: "workspace_id"}
	}
	if txn.FullyAllocated() {
		return nil, &PoolStats{amountCounts: map[string]int{}}, nil
	}

	eligible := make([]*document.Document, 0, len(pool))
	stats := &PoolStats{amountCounts: make(map[string]int)}
	for _, doc := range pool {
		if doc.WorkspaceID != txn.WorkspaceID {
			continue
		}
		if !doc.SettlesWith(txn.Direction) || !doc.Open() {
			continue
		}
		if !cfg.AllowCrossCurrency && doc.Currency != txn.Currency {
			continue
		}
		eligible = append(eligible, doc)
		stats.amountCounts[doc.AmountRemaining.StringFixed(2)]++
	}

	candidates := make([]Candidate, 0, len(eligible))
	for _, doc := range eligible {
		candidates = append(candidates, Candidate{Documents: []*document.Document{doc}})
	}

	// Combination seeds: subsets of one counterparty's open documents whose
	// remainders sum to the transaction's unallocated amount
	for _, group := range groupByCounterparty(eligible) {
		if len(group) < 2 {
			continue
		}
		for _, set := range FindDocumentCombinations(group, txn.Unallocated(), cfg.Combination) {
			if len(set) < 2 {
				continue
			}
			candidates = append(candidates, Candidate{Documents: set, Combination: true})
		}
	}

	return candidates, stats, nil
}

// GenerateForDocument is the symmetric generator for a document anchor over
// the open-transaction pool, producing installment combinations as well.
func GenerateForDocument(doc *document.Document, pool []*transaction.Transaction, cfg *Config) ([]Candidate, *PoolStats, error) {
	if doc == nil || doc.WorkspaceID == uuid.Nil {
		return nil, nil, shared.ErrInvalidScope{Field: "workspace_id"}
	}
	if !doc.Open() {
		return nil, &PoolStats{amountCounts: map[string]int{}}, nil
	}

	eligible := make([]*transaction.Transaction, 0, len(pool))
	stats := &PoolStats{amountCounts: make(map[string]int)}
	for _, txn := range pool {
		if txn.WorkspaceID != doc.WorkspaceID {
			continue
		}
		if !doc.SettlesWith(txn.Direction) || txn.FullyAllocated() {
			continue
		}
		if !cfg.AllowCrossCurrency && txn.Currency != doc.Currency {
			continue
		}
		eligible = append(eligible, txn)
		stats.amountCounts[txn.Unallocated().StringFixed(2)]++
	}

	candidates := make([]Candidate, 0, len(eligible))
	for _, txn := range eligible {
		candidates = append(candidates, Candidate{Transactions: []*transaction.Transaction{txn}})
	}

	for _, set := range FindTransactionCombinations(eligible, doc.AmountRemaining, cfg.Combination) {
		if len(set) < 2 {
			continue
		}
		candidates = append(candidates, Candidate{Transactions: set, Combination: true})
	}

	return candidates, stats, nil
}

func groupByCounterparty(docs []*document.Document) map[string][]*document.Document {
	groups := make(map[string][]*document.Document)
	for _, d := range docs {
		key := NormalizeText(d.CounterpartyName)
		groups[key] = append(groups[key], d)
	}
	return groups
}
