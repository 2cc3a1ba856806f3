// Package phonetic resolves spoken words against a closed vocabulary: contact
// names read back from speech-to-text and spoken language names.
//
// Candidates that share a Double Metaphone code with the input are ranked by
// Jaro-Winkler similarity and accepted above a lenient threshold. When no
// candidate sounds alike, a stricter pure Jaro-Winkler threshold applies.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity for a candidate that
// shares a phonetic code with the input. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity for a candidate without a
// shared phonetic code. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the default thresholds overridden by opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Result is the outcome of a successful [Matcher.Best].
type Result struct {
	// Value is the candidate exactly as supplied.
	Value string
	// Score is the Jaro-Winkler similarity in [0, 1].
	Score float64
	// Phonetic is true when the input and Value share a Double Metaphone code.
	Phonetic bool
}

// Best returns the candidate closest to spoken. Phonetic matches always beat
// purely fuzzy ones; ties keep the earlier candidate.
func (m *Matcher) Best(spoken string, candidates []string) (Result, bool) {
	in := normalise(spoken)
	if in == "" || len(candidates) == 0 {
		return Result{}, false
	}
	inTokens := strings.Fields(in)
	inCodes := codes(inTokens)

	var best Result
	for _, c := range candidates {
		cand := normalise(c)
		if cand == "" {
			continue
		}
		candTokens := strings.Fields(cand)
		score := similarity(inTokens, candTokens, in, cand)

		if overlaps(inCodes, codes(candTokens)) {
			if score >= m.phoneticThreshold && (!best.Phonetic || score > best.Score) {
				best = Result{Value: c, Score: score, Phonetic: true}
			}
			continue
		}
		if !best.Phonetic && score >= m.fuzzyThreshold && score > best.Score {
			best = Result{Value: c, Score: score}
		}
	}
	return best, best.Value != ""
}

// Mentions reports whether any token of utterance matches keyword closely
// enough for Best to accept it.
func (m *Matcher) Mentions(utterance, keyword string) bool {
	for _, tok := range strings.Fields(normalise(utterance)) {
		if _, ok := m.Best(tok, []string{keyword}); ok {
			return true
		}
	}
	return false
}

func normalise(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r > 127:
			return r
		case r == '\'':
			return -1
		default:
			return ' '
		}
	}, s)
}

func codes(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			out[primary] = struct{}{}
		}
		if secondary != "" {
			out[secondary] = struct{}{}
		}
	}
	return out
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, the strings
// with spaces removed and every token pair.
func similarity(aTokens, bTokens []string, a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if len(aTokens) > 1 || len(bTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
	}
	for _, x := range aTokens {
		for _, y := range bTokens {
			if s := matchr.JaroWinkler(x, y, false); s > score {
				score = s
			}
		}
	}
	return score
}
