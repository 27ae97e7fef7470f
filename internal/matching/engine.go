package matching

import (
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
)

// Engine runs the full matching pipeline for one anchor: candidate
// generation, scoring, deterministic ranking and the decision policy.
// It keeps no state between calls.
type Engine struct {
	cfg    *Config
	scorer *Scorer
	logger *slog.Logger
}

// NewEngine validates the configuration and builds an engine. A nil config
// selects the defaults.
func NewEngine(cfg *Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, scorer: NewScorer(cfg), logger: logger}, nil
}

// Outcome is the engine's verdict for one anchor. Ranked carries the full
// ordered candidate list so callers can hand weak outcomes to an investigator
// without re-running the engine.
type Outcome struct {
	Action       shared.MatchAction
	Best         *decision.ScoredCandidate
	Alternatives []decision.ScoredCandidate
	Ranked       []decision.ScoredCandidate
}

type scoredEntry struct {
	cand    *Candidate
	signals decision.Signals
	reasons []string
}

// MatchTransaction matches one transaction anchor against the open-document
// pool. patterns is keyed by vendorpattern.NormalizeCounterparty; a nil or
// incomplete map simply scores without learned history.
func (e *Engine) MatchTransaction(txn *transaction.Transaction, pool []*document.Document, patterns map[string]*vendorpattern.Pattern) (*Outcome, error) {
	cands, stats, err := GenerateForTransaction(txn, pool, e.cfg)
	if err != nil {
		return nil, err
	}

	entries := make([]scoredEntry, 0, len(cands))
	for i := range cands {
		pattern := patternFor(patterns, cands[i].Documents[0].CounterpartyName)
		sig, reasons := e.scorer.ScoreForTransaction(txn, &cands[i], pattern, stats)
		if sig.Confidence <= 0 {
			continue
		}
		entries = append(entries, scoredEntry{cand: &cands[i], signals: sig, reasons: reasons})
	}
	rankEntries(entries)

	ranked := toRankedCandidates(entries, txn.Unallocated())
	action, best, alts := Decide(ranked, e.cfg)

	e.logger.Debug("matched transaction anchor",
		"transaction_id", txn.ID,
		"pool_size", len(pool),
		"candidates", len(cands),
		"scored", len(ranked),
		"action", action,
	)
	return &Outcome{Action: action, Best: best, Alternatives: alts, Ranked: ranked}, nil
}

// MatchDocument matches one document anchor against the open-transaction pool
func (e *Engine) MatchDocument(doc *document.Document, pool []*transaction.Transaction, patterns map[string]*vendorpattern.Pattern) (*Outcome, error) {
	cands, stats, err := GenerateForDocument(doc, pool, e.cfg)
	if err != nil {
		return nil, err
	}

	pattern := patternFor(patterns, doc.CounterpartyName)
	entries := make([]scoredEntry, 0, len(cands))
	for i := range cands {
		sig, reasons := e.scorer.ScoreForDocument(doc, &cands[i], pattern, stats)
		if sig.Confidence <= 0 {
			continue
		}
		entries = append(entries, scoredEntry{cand: &cands[i], signals: sig, reasons: reasons})
	}
	rankEntries(entries)

	ranked := toRankedCandidates(entries, doc.AmountRemaining)
	action, best, alts := Decide(ranked, e.cfg)

	e.logger.Debug("matched document anchor",
		"document_id", doc.ID,
		"pool_size", len(pool),
		"candidates", len(cands),
		"scored", len(ranked),
		"action", action,
	)
	return &Outcome{Action: action, Best: best, Alternatives: alts, Ranked: ranked}, nil
}

func patternFor(patterns map[string]*vendorpattern.Pattern, counterparty string) *vendorpattern.Pattern {
	if len(patterns) == 0 {
		return nil
	}
	return patterns[vendorpattern.NormalizeCounterparty(counterparty)]
}

// rankEntries orders candidates best-first. Ties break on fewer items, then
// smaller total, then item ID, so identical inputs always rank identically.
func rankEntries(entries []scoredEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.signals.Confidence != b.signals.Confidence {
			return a.signals.Confidence > b.signals.Confidence
		}
		an, bn := a.cand.size(), b.cand.size()
		if an != bn {
			return an < bn
		}
		at, bt := a.cand.Total(), b.cand.Total()
		if !at.Equal(bt) {
			return at.LessThan(bt)
		}
		return a.cand.firstID().String() < b.cand.firstID().String()
	})
}

func (c *Candidate) size() int {
	return len(c.Documents) + len(c.Transactions)
}

func (c *Candidate) firstID() uuid.UUID {
	if len(c.Documents) > 0 {
		return c.Documents[0].ID
	}
	return c.Transactions[0].ID
}

func toRankedCandidates(entries []scoredEntry, anchorBudget decimal.Decimal) []decision.ScoredCandidate {
	ranked := make([]decision.ScoredCandidate, len(entries))
	for i, en := range entries {
		ranked[i] = toScoredCandidate(en, anchorBudget)
	}
	return ranked
}

// toScoredCandidate converts an entry to its portable form with per-item
// allocation amounts. Combination members allocate their full open amount;
// a singleton allocates at most the anchor's open amount.
func toScoredCandidate(en scoredEntry, anchorBudget decimal.Decimal) decision.ScoredCandidate {
	c := en.cand
	items := make([]decision.CandidateItem, 0, c.size())
	for _, d := range c.Documents {
		items = append(items, decision.CandidateItem{ID: d.ID, Amount: planAmount(d.AmountRemaining, anchorBudget, c.Combination)})
	}
	for _, t := range c.Transactions {
		items = append(items, decision.CandidateItem{ID: t.ID, Amount: planAmount(t.Unallocated(), anchorBudget, c.Combination)})
	}
	return decision.ScoredCandidate{
		Items:       items,
		Amount:      c.Total().StringFixed(2),
		Combination: c.Combination,
		Signals:     en.signals,
		Reasons:     en.reasons,
	}
}

func planAmount(itemOpen, anchorBudget decimal.Decimal, combination bool) string {
	if !combination && itemOpen.GreaterThan(anchorBudget) {
		itemOpen = anchorBudget
	}
	return itemOpen.StringFixed(2)
}
