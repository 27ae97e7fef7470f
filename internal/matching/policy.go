package matching

import (
	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// Decide maps a best-first ranked candidate list to a match action. The checks
// run in a fixed order:
//
//  1. auto-match needs a high-confidence best with a clear lead over the
//     runner-up, so a strong candidate shadowed by a near-equal never settles
//     books on its own;
//  2. a top-two gap inside the ambiguity window always presents options,
//     regardless of how confident both are;
//  3. then the plain confidence ladder: suggest, suggest with warning, nothing.
//
// Zero-confidence candidates must be filtered out before calling.
func Decide(ranked []decision.ScoredCandidate, cfg *Config) (shared.MatchAction, *decision.ScoredCandidate, []decision.ScoredCandidate) {
	if len(ranked) == 0 {
		return shared.MatchActionNoMatch, nil, nil
	}

	best := &ranked[0]
	margin := best.Signals.Confidence
	if len(ranked) > 1 {
		margin = best.Signals.Confidence - ranked[1].Signals.Confidence
	}

	if best.Signals.Confidence >= cfg.AutoMatchThreshold &&
		(len(ranked) == 1 || margin > cfg.AutoMatchMargin) {
		return shared.MatchActionAutoMatch, best, nil
	}

	if len(ranked) > 1 && margin <= cfg.AmbiguityWindow {
		return shared.MatchActionPresentOptions, best, alternatives(ranked, cfg.MaxAlternatives)
	}

	if best.Signals.Confidence >= cfg.SuggestThreshold {
		return shared.MatchActionSuggest, best, alternatives(ranked, cfg.MaxAlternatives)
	}

	if best.Signals.Confidence >= cfg.WarnThreshold {
		return shared.MatchActionSuggestWithWarning, best, alternatives(ranked, cfg.MaxAlternatives)
	}

	return shared.MatchActionNoMatch, nil, nil
}

func alternatives(ranked []decision.ScoredCandidate, max int) []decision.ScoredCandidate {
	if len(ranked) <= 1 || max <= 0 {
		return nil
	}
	rest := ranked[1:]
	if len(rest) > max {
		rest = rest[:max]
	}
	out := make([]decision.ScoredCandidate, len(rest))
	copy(out, rest)
	return out
}
