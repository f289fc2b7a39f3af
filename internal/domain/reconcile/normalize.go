package reconcile

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"job": true, "inv": true, "invoice": true, "ref": true, "per": true,
	"ltd": true, "pty": true, "inc": true, "llc": true, "qty": true,
	"each": true, "off": true, "via": true, "our": true, "you": true,
}

// Normalize lower-cases s, turns every non-alphanumeric rune into a space and
// collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens splits a normalized string.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// Keywords returns the significant tokens of a normalized string: at least
// three characters, not a stopword, not purely numeric. Sorted and unique.
func Keywords(normalized string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Tokens(normalized) {
		if len(t) < 3 || stopwords[t] || isNumeric(t) || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// shared returns the intersection of two sorted keyword lists.
func shared(a, b []string) []string {
	var out []string
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}
