// Package matching implements the reconciliation matching engine: candidate
// generation, multi-signal confidence scoring, subset-sum combination search
// and the decision policy. Everything in this package is a pure function of
// its inputs so scoring stays deterministic and auditable; persistence and
// side effects live with the callers.
package matching

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// FeeModel describes one payment processor's fee structure. Rates change over
// time, so these are configuration data, never constants inside the scorer.
type FeeModel struct {
	Name       string
	Percentage decimal.Decimal // fraction, e.g. 0.029
	Fixed      decimal.Decimal // flat fee per payment
}

// CombinationOptions bounds the subset-sum search. Full subset-sum is
// exponential, so every knob here exists to keep worst-case latency predictable.
type CombinationOptions struct {
	MaxItems      int             // largest allowed combination
	MaxResults    int             // stop after this many combinations found
	MaxIterations int             // hard ceiling on visited search nodes
	Tolerance     decimal.Decimal // acceptable residual between sum and target
}

// Config tunes the engine. Thresholds live here rather than in the scorer so
// the decision policy can be adjusted without touching scoring logic.
type Config struct {
	// Decision policy thresholds on the 0-100 confidence scale
	AutoMatchThreshold int
	SuggestThreshold   int
	WarnThreshold      int
	AutoMatchMargin    int // lead over the closest runner-up required to auto-match
	AmbiguityWindow    int // top-two gap at or under this presents options instead
	MaxAlternatives    int

	// Amount scoring tolerances
	AmountTolerance        decimal.Decimal // exact-match window
	FeeTolerance           decimal.Decimal // fee-adjusted match window
	TypicalAmountTolerance decimal.Decimal // window against learned typical amounts
	MinPartialRatio        decimal.Decimal // smallest payment/remaining ratio counted as partial
	CleanFractionTolerance decimal.Decimal // window around 1/2, 1/3, 1/4, 1/5
	ApproximateRelDiff     decimal.Decimal // relative difference treated as approximate

	// Fuzzy text similarity cutoffs
	FuzzyReferenceThreshold float64
	FuzzyIdentityStrong     float64
	FuzzyIdentityWeak       float64

	// AllowCrossCurrency lets candidates pair across currencies. Off by default;
	// amount signals are unreliable without conversion.
	AllowCrossCurrency bool

	Combination CombinationOptions
	FeeModels   []FeeModel
}

// DefaultConfig returns the engine defaults. The bundled fee models reflect
// published processor rates at the time of writing and are expected to be
// overridden from application configuration.
func DefaultConfig() *Config {
	return &Config{
		AutoMatchThreshold: 85,
		SuggestThreshold:   60,
		WarnThreshold:      40,
		AutoMatchMargin:    20,
		AmbiguityWindow:    10,
		MaxAlternatives:    3,

		AmountTolerance:        decimal.New(1, -2),  // $0.01
		FeeTolerance:           decimal.New(1, 0),   // $1.00
		TypicalAmountTolerance: decimal.New(1, 0),   // $1.00
		MinPartialRatio:        decimal.New(1, -1),  // 10%
		CleanFractionTolerance: decimal.New(2, -2),  // 2%
		ApproximateRelDiff:     decimal.New(5, -2),  // 5%

		FuzzyReferenceThreshold: 0.8,
		FuzzyIdentityStrong:     0.8,
		FuzzyIdentityWeak:       0.6,

		Combination: CombinationOptions{
			MaxItems:      6,
			MaxResults:    8,
			MaxIterations: 200_000,
			Tolerance:     decimal.New(1, 0), // $1.00
		},

		FeeModels: []FeeModel{
			{Name: "stripe", Percentage: decimal.New(29, -3), Fixed: decimal.New(30, -2)},
			{Name: "paypal", Percentage: decimal.New(349, -4), Fixed: decimal.New(49, -2)},
			{Name: "square", Percentage: decimal.New(26, -3), Fixed: decimal.New(10, -2)},
		},
	}
}

// Validate checks the configuration for values the engine cannot work with
func (c *Config) Validate() error {
	var problems []string

	if c.AutoMatchThreshold <= 0 || c.AutoMatchThreshold > 100 {
		problems = append(problems, "auto-match threshold must be in (0, 100]")
	}
	if c.SuggestThreshold <= 0 || c.SuggestThreshold > c.AutoMatchThreshold {
		problems = append(problems, "suggest threshold must be positive and not above the auto-match threshold")
	}
	if c.WarnThreshold <= 0 || c.WarnThreshold > c.SuggestThreshold {
		problems = append(problems, "warn threshold must be positive and not above the suggest threshold")
	}
	if c.AutoMatchMargin < 0 {
		problems = append(problems, "auto-match margin cannot be negative")
	}
	if c.AmbiguityWindow < 0 {
		problems = append(problems, "ambiguity window cannot be negative")
	}
	if c.MaxAlternatives < 0 {
		problems = append(problems, "max alternatives cannot be negative")
	}
	if c.AmountTolerance.IsNegative() || c.FeeTolerance.IsNegative() {
		problems = append(problems, "amount tolerances cannot be negative")
	}
	if !c.MinPartialRatio.IsPositive() || c.MinPartialRatio.GreaterThanOrEqual(decimal.New(1, 0)) {
		problems = append(problems, "min partial ratio must be in (0, 1)")
	}
	if c.Combination.MaxItems < 2 {
		problems = append(problems, "combination max items must be at least 2")
	}
	if c.Combination.MaxResults <= 0 {
		problems = append(problems, "combination max results must be positive")
	}
	if c.Combination.MaxIterations <= 0 {
		problems = append(problems, "combination max iterations must be positive")
	}
	for _, m := range c.FeeModels {
		if m.Name == "" {
			problems = append(problems, "fee model name cannot be empty")
		}
		if m.Percentage.IsNegative() || m.Percentage.GreaterThanOrEqual(decimal.New(1, 0)) {
			problems = append(problems, "fee model percentage must be in [0, 1)")
		}
	}

	if len(problems) > 0 {
		return errors.New("invalid matching config: " + strings.Join(problems, ", "))
	}
	return nil
}
