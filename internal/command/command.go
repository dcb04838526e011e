// Package command turns recognized transcripts into UrbanSense voice
// commands.
//
// Matching is substring based, in the order explore, navigate, sos, transit.
// An optional phonetic [Matcher] catches near misses such as "explor" or
// "navigator" when no substring matches.
package command

import (
	"strings"
)

// Command is a top-level voice command.
type Command int

const (
	// None means the transcript named no command.
	None Command = iota
	Explore
	Navigate
	SOS
	Transit
)

// String returns the keyword for c.
func (c Command) String() string {
	switch c {
	case Explore:
		return "explore"
	case Navigate:
		return "navigate"
	case SOS:
		return "sos"
	case Transit:
		return "transit"
	default:
		return "none"
	}
}

// ClarificationPrompt is spoken when a transcript names no command.
const ClarificationPrompt = "I didn't catch that. You can say 'Explore', 'Navigate', 'Transit', or 'SOS'."

// keywords lists commands in match priority order.
var keywords = []Command{Explore, Navigate, SOS, Transit}

// affirmatives confirm a pending navigation.
var affirmatives = map[string]struct{}{
	"yes": {}, "proceed": {}, "start": {}, "ok": {}, "okay": {},
	"confirm": {}, "sure": {}, "yup": {}, "yeah": {}, "go": {},
}

// Normalize lowercases and trims a transcript.
func Normalize(transcript string) string {
	return strings.ToLower(strings.TrimSpace(transcript))
}

// Parser maps transcripts to commands.
type Parser struct {
	phonetic *Matcher
}

// ParserOption configures a [Parser].
type ParserOption func(*Parser)

// WithPhonetic enables the phonetic fallback using m.
func WithPhonetic(m *Matcher) ParserOption {
	return func(p *Parser) { p.phonetic = m }
}

// NewParser returns a parser. Without options it matches substrings only.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse returns the command named in transcript, or [None].
func (p *Parser) Parse(transcript string) Command {
	t := Normalize(transcript)
	if t == "" {
		return None
	}
	for _, c := range keywords {
		if strings.Contains(t, c.String()) {
			return c
		}
	}
	if p.phonetic == nil {
		return None
	}

	words := make([]string, len(keywords))
	for i, c := range keywords {
		words[i] = c.String()
	}
	best, _, ok := p.phonetic.MatchAny(strings.Fields(t), words)
	if !ok {
		return None
	}
	for _, c := range keywords {
		if c.String() == best {
			return c
		}
	}
	return None
}

// IsAffirmative reports whether transcript contains a word that confirms a
// pending navigation. Matching is by whole word so "no thanks" and "not
// going" are negative.
func IsAffirmative(transcript string) bool {
	for _, w := range strings.FieldsFunc(Normalize(transcript), isSeparator) {
		if _, ok := affirmatives[w]; ok {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
}
