package answer

import (
	"regexp"
	"strings"
)

const (
	// Sentences longer than longSentence characters get re-split on ". ".
	longSentence = 200
	// Sentences longer than maxSentence characters are excluded outright.
	maxSentence = 500
	// Fragments at or under minFragment characters are dropped.
	minFragment = 10
)

var (
	bannerRe = regexp.MustCompile(`===[^=]+===`)
	// sentence boundary: terminal punctuation, whitespace, capital letter
	boundaryRe = regexp.MustCompile(`([.!?])\s+([A-Z])`)
	blankRe    = regexp.MustCompile(`\n\s*\n`)
)

func hasTerminalPunct(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

// SplitSentences segments chunk text into candidate answer sentences:
// banner markers are stripped, blocks split on blank lines, sentences split
// at punctuation-then-capital boundaries, long or unterminated sentences
// re-split on ". ", short fragments dropped, duplicates removed in order,
// and anything past 500 characters excluded.
func SplitSentences(text string) []string {
	cleaned := bannerRe.ReplaceAllString(text, " ")

	var raw []string
	for _, block := range blankRe.Split(cleaned, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		// Mark boundaries, then cut. The capital letter stays with the
		// following sentence.
		marked := boundaryRe.ReplaceAllString(block, "$1\x00$2")
		raw = append(raw, strings.Split(marked, "\x00")...)
	}

	var candidates []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if len(s) > longSentence || !hasTerminalPunct(s) {
			for _, part := range strings.Split(s, ". ") {
				part = strings.TrimSpace(strings.TrimSuffix(part, "."))
				if part == "" {
					continue
				}
				candidates = append(candidates, part+".")
			}
			continue
		}
		candidates = append(candidates, s)
	}

	seen := make(map[string]struct{}, len(candidates))
	var out []string
	for _, s := range candidates {
		if len(s) <= minFragment || len(s) > maxSentence {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
