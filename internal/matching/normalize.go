package matching

import (
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// stopwords are tokens too generic to identify a counterparty or reference
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "from": {}, "with": {},
	"payment": {}, "pymt": {}, "pmt": {}, "transfer": {}, "trf": {},
	"invoice": {}, "inv": {}, "bill": {}, "ref": {}, "reference": {},
	"ltd": {}, "llc": {}, "inc": {}, "gmbh": {}, "corp": {}, "co": {},
	"card": {}, "debit": {}, "credit": {}, "ach": {}, "sepa": {}, "wire": {},
}

// NormalizeText lowercases and keeps only alphanumerics and single spaces
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeReference squashes a reference-like string to bare lowercase
// alphanumerics, so "INV-001", "inv 001" and "Inv#001" all compare equal
func NormalizeReference(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokenize splits text into normalized tokens
func Tokenize(s string) []string {
	return strings.Fields(NormalizeText(s))
}

// SignificantTokens returns tokens with stopwords and bare short fragments removed
func SignificantTokens(s string) []string {
	var out []string
	for _, tok := range Tokenize(s) {
		if len(tok) < 3 {
			continue
		}
		if _, skip := stopwords[tok]; skip {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// ReferenceTokens extracts the tokens of a transaction that could be a payment
// reference: the dedicated reference field plus description tokens carrying at
// least one digit. Adjacent alpha+digit pairs ("INV 001") are joined as well.
func ReferenceTokens(description, reference string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tok string) {
		norm := NormalizeReference(tok)
		if len(norm) < 3 {
			return
		}
		if _, dup := seen[norm]; dup {
			return
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}

	if reference != "" {
		add(reference)
	}

	tokens := Tokenize(description)
	for i, tok := range tokens {
		if !containsDigit(tok) {
			continue
		}
		add(tok)
		if i > 0 && !containsDigit(tokens[i-1]) {
			add(tokens[i-1] + tok)
		}
	}
	return out
}

// Similarity is the Levenshtein ratio of two strings in [0, 1]
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}

// TokenSetSimilarity scores how well the tokens of a (typically a counterparty
// name) are covered by the tokens of b (typically a bank description). Each
// token of a takes its best match in b; the result is the mean over a's tokens.
func TokenSetSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var sum float64
	for _, at := range a {
		best := 0.0
		for _, bt := range b {
			if s := Similarity(at, bt); s > best {
				best = s
			}
		}
		sum += best
	}
	return sum / float64(len(a))
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
