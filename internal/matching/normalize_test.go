package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Corp.", "acme corp"},
		{"ACME-CORP  PAYMENT", "acme corp payment"},
		{"  spaced   out  ", "spaced out"},
		{"Stripe*Transfer#42", "stripe transfer 42"},
		{"", ""},
		{"---", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeText(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeReference(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INV-001", "inv001"},
		{"inv 001", "inv001"},
		{"Inv#001", "inv001"},
		{"2025/0042", "20250042"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeReference(tt.in), "input %q", tt.in)
	}
}

func TestSignificantTokens(t *testing.T) {
	got := SignificantTokens("Payment from Acme Corp Ltd for invoice")

	assert.Equal(t, []string{"acme"}, got, "stopwords and short fragments drop out")
}

func TestReferenceTokens(t *testing.T) {
	t.Run("joins split references", func(t *testing.T) {
		got := ReferenceTokens("ACME PAYMENT INV 001", "")

		assert.Contains(t, got, "001")
		assert.Contains(t, got, "inv001")
	})

	t.Run("reference field comes first", func(t *testing.T) {
		got := ReferenceTokens("wire received 884", "INV-55A")

		assert.Equal(t, "inv55a", got[0])
		assert.Contains(t, got, "884")
	})

	t.Run("deduplicates", func(t *testing.T) {
		got := ReferenceTokens("INV001 again INV001", "INV-001")

		count := 0
		for _, tok := range got {
			if tok == "inv001" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("drops fragments shorter than three characters", func(t *testing.T) {
		got := ReferenceTokens("paid 12", "")

		assert.NotContains(t, got, "12")
	})
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("inv001", "inv001"))
	assert.Equal(t, 0.0, Similarity("", "inv001"))
	assert.Equal(t, 0.0, Similarity("inv001", ""))

	near := Similarity("inv0012", "inv0013")
	assert.Greater(t, near, 0.8)
	assert.Less(t, near, 1.0)

	far := Similarity("inv001", "xyz999")
	assert.Less(t, far, 0.3)
}

func TestTokenSetSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, TokenSetSimilarity(nil, []string{"acme"}))
	assert.Equal(t, 0.0, TokenSetSimilarity([]string{"acme"}, nil))
	assert.Equal(t, 1.0, TokenSetSimilarity([]string{"acme", "corp"}, []string{"corp", "acme", "payment"}))

	partial := TokenSetSimilarity([]string{"acme", "widgets"}, []string{"acme", "transfer"})
	assert.Greater(t, partial, 0.4)
	assert.Less(t, partial, 0.8)
}
