package vendorpattern

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrEmptyCounterparty = errors.New("counterparty name cannot be empty")
)

// Caps keeping learned sets bounded as patterns age
const (
	MaxKeywords       = 25
	MaxAliases        = 10
	MaxExcluded       = 25
	MaxTypicalAmounts = 10
	MaxRecentDelays   = 20
)

// Pattern is the learned payment behavior of one counterparty within a
// workspace. It is created on the first confirmed match, merged incrementally
// on every later confirmation (running averages, set unions) and never deleted
// automatically. Rejections only add to ExcludedKeywords; they do not unlearn
// prior confirmations.
type Pattern struct {
	ID               uuid.UUID         `json:"id"`
	WorkspaceID      uuid.UUID         `json:"workspace_id"`
	Counterparty     string            `json:"counterparty"` // normalized key
	DisplayName      string            `json:"display_name"` // counterparty as first seen
	Keywords         []string          `json:"keywords"`
	Aliases          []string          `json:"aliases"`
	ExcludedKeywords []string          `json:"excluded_keywords"`
	Processor        string            `json:"processor,omitempty"` // detected payment processor
	TypicalFee       decimal.Decimal   `json:"typical_fee"`         // processor fee as a fraction, 0 when unknown
	TypicalDelayDays float64           `json:"typical_delay_days"`  // mean issue-to-payment delay
	DelayStddevDays  float64           `json:"delay_stddev_days"`
	RecentDelays     []float64         `json:"recent_delays"` // bounded window feeding the running stats
	TypicalAmounts   []decimal.Decimal `json:"typical_amounts"`
	UsesInstallments bool              `json:"uses_installments"`
	InstallmentHint  string            `json:"installment_hint,omitempty"` // e.g. "3x"
	MatchCount       int               `json:"match_count"`
	LearningScore    float64           `json:"learning_score"` // confidence in this pattern, 0..1
	Version          int               `json:"version"`        // For optimistic locking
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// NormalizeCounterparty produces the storage key for a counterparty name:
// lowercased with collapsed whitespace and punctuation stripped.
func NormalizeCounterparty(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// New creates an empty pattern for a counterparty
func New(workspaceID uuid.UUID, counterpartyName string) (*Pattern, error) {
	key := NormalizeCounterparty(counterpartyName)
	if key == "" {
		return nil, ErrEmptyCounterparty
	}

	now := time.Now().UTC()
	return &Pattern{
		ID:           uuid.New(),
		WorkspaceID:  workspaceID,
		Counterparty: key,
		DisplayName:  counterpartyName,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasKeyword reports whether the token is a learned keyword that has not been excluded
func (p *Pattern) HasKeyword(token string) bool {
	if p.IsExcluded(token) {
		return false
	}
	return containsFold(p.Keywords, token)
}

// HasAlias reports whether the text matches a learned alias that has not been excluded
func (p *Pattern) HasAlias(text string) bool {
	lower := strings.ToLower(text)
	for _, a := range p.Aliases {
		if a == "" || p.IsExcluded(a) {
			continue
		}
		if strings.Contains(lower, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

// IsExcluded reports whether a token was dissociated by a rejection
func (p *Pattern) IsExcluded(token string) bool {
	return containsFold(p.ExcludedKeywords, token)
}

// HasTypicalAmount reports whether the amount is within tolerance of a
// historically typical amount for this counterparty
func (p *Pattern) HasTypicalAmount(amount, tolerance decimal.Decimal) bool {
	for _, typical := range p.TypicalAmounts {
		if amount.Sub(typical).Abs().LessThanOrEqual(tolerance) {
			return true
		}
	}
	return false
}

func containsFold(set []string, token string) bool {
	for _, s := range set {
		if strings.EqualFold(s, token) {
			return true
		}
	}
	return false
}
