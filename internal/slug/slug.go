// Package slug derives compact, deterministic record filenames from a talk's date, conference,
// and title.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxFilename is the length budget for a record filename, extension included.
	MaxFilename = 75
	// Extension is the record file extension.
	Extension = ".md"

	maxConferenceTokens = 3
	maxConferenceSlug   = 30
	titleTokens         = 2
	// longWord is the length above which a stop word is kept as a likely technical term.
	longWord = 8
	// relaxedWord is the length at or below which stop words are kept when filtering leaves too little.
	relaxedWord = 3
	// keepRatio is the share of the title budget a hyphen-boundary cut must still use.
	keepRatio = 0.6
)

var (
	nonAlnum    = regexp.MustCompile(`[^a-z0-9]+`)
	yearPattern = regexp.MustCompile(`^\d{4}$`)

	conferenceStopWords = set(
		"conference", "conf", "summit", "tech", "meetup", "the", "annual", "international",
		"event", "edition", "days", "forum", "symposium", "convention",
	)

	titleStopWords = set(
		"a", "an", "the", "and", "or", "but", "of", "to", "in", "on", "for", "with", "at", "by",
		"from", "is", "are", "be", "how", "why", "what", "when", "your", "you", "we", "our", "it",
		"its", "into", "about", "this", "that", "my", "not", "do", "does", "can", "all",
	)
)

// Conference returns up to three tokens of the conference name, preferring names over a bare
// year once two name tokens are chosen.
func Conference(name string) string {
	tokens := tokenize(name)
	filtered := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := conferenceStopWords[tok]; !stop {
			filtered = append(filtered, tok)
		}
	}
	if len(filtered) == 0 {
		filtered = tokens
	}

	chosen := make([]string, 0, maxConferenceTokens)
	var deferred []string
	nonYear := 0
	for _, tok := range filtered {
		if len(chosen) == maxConferenceTokens {
			break
		}
		if yearPattern.MatchString(tok) {
			if nonYear >= 2 {
				deferred = append(deferred, tok)
				continue
			}
		} else {
			nonYear++
		}
		chosen = append(chosen, tok)
	}
	for _, tok := range deferred {
		if len(chosen) == maxConferenceTokens {
			break
		}
		chosen = append(chosen, tok)
	}
	if len(chosen) == 0 {
		return "event"
	}
	return truncate(strings.Join(chosen, "-"), maxConferenceSlug)
}

// Title returns the first two meaningful words of the title.
func Title(title string) string {
	tokens := tokenize(title)
	words := filterTitle(tokens, false)
	if len(words) < titleTokens {
		words = filterTitle(tokens, true)
	}
	if len(words) == 0 {
		return "talk"
	}
	if len(words) > titleTokens {
		words = words[:titleTokens]
	}
	return strings.Join(words, "-")
}

// Filename builds "{date}-{conference}-{title}.md" within the MaxFilename budget.
func Filename(date, conference, title string) string {
	conf := Conference(conference)
	titleSlug := Title(title)
	available := MaxFilename - (len(date) + 1 + len(conf) + 1 + len(Extension))
	if len(titleSlug) > available {
		titleSlug = fit(titleSlug, available)
	}
	parts := []string{date, conf}
	if titleSlug != "" {
		parts = append(parts, titleSlug)
	}
	return strings.Join(parts, "-") + Extension
}

// fit shortens s to at most budget characters, cutting at a hyphen when that keeps at least
// keepRatio of the budget.
func fit(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if len(s) <= budget {
		return s
	}
	if cut := strings.LastIndex(s[:budget], "-"); cut > 0 && float64(cut) >= keepRatio*float64(budget) {
		return s[:cut]
	}
	return strings.TrimRight(s[:budget], "-")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return fit(s, limit)
}

func filterTitle(tokens []string, relaxed bool) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		_, stop := titleStopWords[tok]
		switch {
		case !stop, len(tok) > longWord:
			out = append(out, tok)
		case relaxed && len(tok) <= relaxedWord:
			out = append(out, tok)
		}
	}
	return out
}

// tokenize lower-cases s, folds accents, and splits on anything that is not a-z or 0-9.
func tokenize(s string) []string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	var out []string
	for _, tok := range nonAlnum.Split(strings.ToLower(folded), -1) {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
