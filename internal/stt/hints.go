package stt

import (
	"strings"
	"unicode"
)

const (
	hintLabel = "This audio may contain these terms: "

	maxHintTerms   = 100
	maxHintTermLen = 64
)

// SanitizeHints normalizes a vocabulary list: control characters, commas and
// line breaks become spaces, whitespace collapses, overlong terms are cut, and
// duplicates (case-insensitive) and empties are dropped. Order is preserved.
func SanitizeHints(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))

	for _, term := range terms {
		clean := strings.Map(func(r rune) rune {
			// commas separate terms in the labeled prompt
			if unicode.IsControl(r) || r == '\u2028' || r == '\u2029' || r == ',' {
				return ' '
			}
			return r
		}, term)
		clean = strings.Join(strings.Fields(clean), " ")
		if r := []rune(clean); len(r) > maxHintTermLen {
			clean = strings.TrimSpace(string(r[:maxHintTermLen]))
		}
		if clean == "" {
			continue
		}

		key := strings.ToLower(clean)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, clean)

		if len(out) == maxHintTerms {
			break
		}
	}
	return out
}

// FormatHints renders the sanitized term list as a labeled hint string.
// The label frames the terms as vocabulary so that backends accepting a
// prompt never see them as free-standing text.
func FormatHints(terms []string) string {
	clean := SanitizeHints(terms)
	if len(clean) == 0 {
		return ""
	}
	return hintLabel + strings.Join(clean, ", ") + "."
}
