// Package urlnorm canonicalizes source URLs for equality checks and scores fuzzy matches.
package urlnorm

import (
	"net/url"
	"strings"
)

// SimilarityThreshold is the minimum Similarity score at which two strings are treated as the
// same value after an acceptable transformation.
const SimilarityThreshold = 0.6

// Normalize trims whitespace, downgrades https to http, and strips a single trailing slash.
// The result is only meant for comparison and must not be used for network calls.
func Normalize(raw string) string {
	if raw == "" {
		return raw
	}
	out := strings.TrimSpace(raw)
	if strings.HasPrefix(out, "https://") {
		out = "http://" + strings.TrimPrefix(out, "https://")
	}
	return strings.TrimSuffix(out, "/")
}

// Equal reports whether a and b normalize to the same value.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Similarity returns 1 - levenshtein(a, b)/max(len(a), len(b)), compared case-insensitively.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// Similar reports whether a and b score above SimilarityThreshold.
func Similar(a, b string) bool {
	return Similarity(a, b) > SimilarityThreshold
}

// AcceptableTransform reports whether got is an acceptable rendering of want: equal after
// normalization, fuzzily similar, or on the same host.
func AcceptableTransform(want, got string) bool {
	if Equal(want, got) || Similar(want, got) {
		return true
	}
	wh, gh := Host(want), Host(got)
	return wh != "" && wh == gh
}

// Host returns the lower-cased host of raw without a leading "www.", or "" when unparsable.
func Host(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// HostMatches reports whether raw's host equals domain or is a subdomain of it.
func HostMatches(raw, domain string) bool {
	host := Host(raw)
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
