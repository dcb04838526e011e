package command

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.88
	minTokenLen              = 3
)

// MatcherOption configures a [Matcher].
type MatcherOption func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a token whose
// Double Metaphone code overlaps a keyword's. Default: 0.80.
func WithPhoneticThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// overlap exists. Default: 0.88.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher finds the keyword a spoken token most likely meant, using Double
// Metaphone codes to find candidates and Jaro-Winkler similarity to rank
// them. It is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher returns a Matcher with default thresholds.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// MatchAny compares every token against every keyword and returns the best
// keyword. Tokens shorter than three letters are skipped. A phonetic
// candidate always beats a purely fuzzy one.
func (m *Matcher) MatchAny(tokens, keywords []string) (keyword string, score float64, ok bool) {
	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, tok := range tokens {
		tok = strings.ToLower(strings.Trim(tok, ".,!?'\""))
		if len(tok) < minTokenLen {
			continue
		}
		tp, ts := matchr.DoubleMetaphone(tok)
		for _, kw := range keywords {
			kp, ks := matchr.DoubleMetaphone(kw)
			jw := matchr.JaroWinkler(tok, kw, false)
			if codesOverlap(tp, ts, kp, ks) {
				if jw >= m.phoneticThreshold && (!bestPhonetic || jw > bestScore) {
					best, bestScore, bestPhonetic = kw, jw, true
				}
				continue
			}
			if !bestPhonetic && jw >= m.fuzzyThreshold && jw > bestScore {
				best, bestScore = kw, jw
			}
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

func codesOverlap(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || a == bs {
			return true
		}
	}
	return false
}
