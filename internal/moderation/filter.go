// Package moderation screens user-submitted free text before it is stored.
package moderation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var defaultDenylist = []string{
	"spam", "scam", "fake", "fraud", "hate", "violence",
	"fuck", "fucking", "fucked", "shit", "shitting", "crap", "piss",
	"ass", "asshole", "bitch", "bastard",
	"dick", "cock", "pussy", "whore", "slut", "cunt", "motherfucker",
	"bullshit", "goddamn", "goddamned", "bugger", "wanker",
	"prick", "twat", "tosser", "bellend", "arse", "arsehole",
	// masked spellings
	"f*ck", "f**k", "s**t", "sh*t", "a**", "a**hole", "b****", "b***h",
	"d***", "c***", "p***y", "w***e", "s***", "m***********r",
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

const (
	capsMinLen     = 10
	capsMaxRatio   = 0.7
	repeatMinLen   = 20
	repeatMinWords = 3
)

// Filter flags profanity and simple spam patterns. It is a heuristic:
// false positives and negatives are expected.
type Filter struct {
	deny map[string]struct{}
}

// New builds a Filter over the built-in denylist plus any extra terms.
func New(extra ...string) *Filter {
	f := &Filter{deny: make(map[string]struct{}, len(defaultDenylist)+len(extra))}
	for _, w := range defaultDenylist {
		f.deny[w] = struct{}{}
	}
	for _, w := range extra {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			f.deny[w] = struct{}{}
		}
	}
	return f
}

// IsDisallowed reports whether text trips any of the denylist, caps or
// repetition checks.
func (f *Filter) IsDisallowed(text string) bool {
	if text == "" {
		return false
	}
	return f.hasDeniedWord(text) || shouting(text) || repetitive(text)
}

func (f *Filter) hasDeniedWord(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range wordRe.FindAllString(lower, -1) {
		if _, ok := f.deny[w]; ok {
			return true
		}
	}
	// masked spellings contain '*' and never survive word tokenization
	for _, tok := range strings.Fields(lower) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return r != '*' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if !strings.ContainsRune(tok, '*') {
			continue
		}
		if _, ok := f.deny[tok]; ok {
			return true
		}
	}
	return false
}

func shouting(text string) bool {
	n := utf8.RuneCountInString(text)
	if n <= capsMinLen {
		return false
	}
	upper := 0
	for _, r := range text {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper)/float64(n) > capsMaxRatio
}

func repetitive(text string) bool {
	if utf8.RuneCountInString(text) <= repeatMinLen {
		return false
	}
	words := strings.Fields(text)
	if len(words) <= repeatMinWords {
		return false
	}
	counts := make(map[string]int, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		counts[w]++
		if float64(counts[w]) > float64(len(words))*0.5 {
			return true
		}
	}
	return false
}
