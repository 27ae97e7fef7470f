package matching

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
)

// combination is one subset-sum result over item indexes
type combination struct {
	indexes  []int
	sum      decimal.Decimal
	residual decimal.Decimal // abs(sum - target)
}

// FindDocumentCombinations searches subsets of open documents whose remaining
// amounts sum within tolerance of the target, for split payments covering
// several documents at once. Results are ranked by ascending item count, then
// by smallest residual: fewer, tighter combinations first.
func FindDocumentCombinations(docs []*document.Document, target decimal.Decimal, opts CombinationOptions) [][]*document.Document {
	amounts := make([]decimal.Decimal, len(docs))
	for i, d := range docs {
		amounts[i] = d.AmountRemaining
	}

	var out [][]*document.Document
	for _, combo := range findCombinations(amounts, target, opts) {
		set := make([]*document.Document, len(combo.indexes))
		for i, idx := range combo.indexes {
			set[i] = docs[idx]
		}
		out = append(out, set)
	}
	return out
}

// FindTransactionCombinations is the symmetric search over transactions'
// unallocated remainders, for documents settled in installments.
func FindTransactionCombinations(txns []*transaction.Transaction, target decimal.Decimal, opts CombinationOptions) [][]*transaction.Transaction {
	amounts := make([]decimal.Decimal, len(txns))
	for i, t := range txns {
		amounts[i] = t.Unallocated()
	}

	var out [][]*transaction.Transaction
	for _, combo := range findCombinations(amounts, target, opts) {
		set := make([]*transaction.Transaction, len(combo.indexes))
		for i, idx := range combo.indexes {
			set[i] = txns[idx]
		}
		out = append(out, set)
	}
	return out
}

// findCombinations runs a depth-first enumeration over the amounts, pruning
// any branch whose running sum already exceeds target + tolerance. The search
// stops at MaxResults combinations or MaxIterations visited nodes, and no
// combination grows beyond MaxItems, which keeps the exponential worst case
// boxed in. Input order is made deterministic by sorting ascending on amount.
func findCombinations(amounts []decimal.Decimal, target decimal.Decimal, opts CombinationOptions) []combination {
	if len(amounts) == 0 || !target.IsPositive() {
		return nil
	}

	order := make([]int, 0, len(amounts))
	for i, a := range amounts {
		if a.IsPositive() {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return amounts[order[i]].LessThan(amounts[order[j]])
	})

	upper := target.Add(opts.Tolerance)
	var (
		results    []combination
		current    []int
		iterations int
	)

	var dfs func(start int, sum decimal.Decimal)
	dfs = func(start int, sum decimal.Decimal) {
		if len(results) >= opts.MaxResults || iterations >= opts.MaxIterations {
			return
		}
		for pos := start; pos < len(order); pos++ {
			iterations++
			if iterations >= opts.MaxIterations {
				return
			}

			next := sum.Add(amounts[order[pos]])
			if next.GreaterThan(upper) {
				// Amounts are sorted ascending, every later branch only grows
				return
			}

			current = append(current, order[pos])
			if next.Sub(target).Abs().LessThanOrEqual(opts.Tolerance) {
				indexes := make([]int, len(current))
				copy(indexes, current)
				results = append(results, combination{
					indexes:  indexes,
					sum:      next,
					residual: next.Sub(target).Abs(),
				})
			}
			if len(results) < opts.MaxResults && len(current) < opts.MaxItems {
				dfs(pos+1, next)
			}
			current = current[:len(current)-1]

			if len(results) >= opts.MaxResults {
				return
			}
		}
	}
	dfs(0, decimal.Zero)

	sort.SliceStable(results, func(i, j int) bool {
		if len(results[i].indexes) != len(results[j].indexes) {
			return len(results[i].indexes) < len(results[j].indexes)
		}
		return results[i].residual.LessThan(results[j].residual)
	})
	return results
}
