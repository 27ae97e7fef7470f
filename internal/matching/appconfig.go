package matching

import (
	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/config"
)

// ConfigFromApp converts application configuration into an engine config.
// Fields the environment does not expose keep their engine defaults. The fee
// model list is always replaced, so an empty MATCHING_FEE_MODELS disables
// fee-adjusted matching rather than silently keeping the bundled rates.
func ConfigFromApp(app *config.MatchingConfig) *Config {
	cfg := DefaultConfig()
	if app == nil {
		return cfg
	}

	cfg.AutoMatchThreshold = app.AutoMatchThreshold
	cfg.SuggestThreshold = app.SuggestThreshold
	cfg.WarnThreshold = app.WarnThreshold
	cfg.AutoMatchMargin = app.AutoMatchMargin
	cfg.AmbiguityWindow = app.AmbiguityWindow
	cfg.MaxAlternatives = app.MaxAlternatives

	cfg.AmountTolerance = decimal.NewFromFloat(app.AmountTolerance)
	cfg.FeeTolerance = decimal.NewFromFloat(app.FeeTolerance)
	cfg.MinPartialRatio = decimal.NewFromFloat(app.MinPartialRatio)
	cfg.CleanFractionTolerance = decimal.NewFromFloat(app.CleanFractionTolerance)
	cfg.ApproximateRelDiff = decimal.NewFromFloat(app.ApproximateRelDiff)

	cfg.FuzzyReferenceThreshold = app.FuzzyReferenceThreshold
	cfg.FuzzyIdentityStrong = app.FuzzyIdentityStrong
	cfg.FuzzyIdentityWeak = app.FuzzyIdentityWeak

	cfg.AllowCrossCurrency = app.AllowCrossCurrency

	cfg.Combination.MaxItems = app.CombinationMaxItems
	cfg.Combination.MaxResults = app.CombinationMaxResults
	cfg.Combination.MaxIterations = app.CombinationMaxIterations
	cfg.Combination.Tolerance = decimal.NewFromFloat(app.CombinationTolerance)

	cfg.FeeModels = make([]FeeModel, 0, len(app.FeeModels))
	for _, m := range app.FeeModels {
		cfg.FeeModels = append(cfg.FeeModels, FeeModel{
			Name:       m.Name,
			Percentage: decimal.NewFromFloat(m.Percentage),
			Fixed:      decimal.NewFromFloat(m.Fixed),
		})
	}

	return cfg
}
