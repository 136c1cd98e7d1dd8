package knowledge

import "strings"

// maxChunkTokens is the soft cap on approximate tokens per chunk, where one
// token is approximated as 4 characters of text.
const (
	maxChunkTokens = 512
	charsPerToken  = 4
)

// approxTokens estimates the token count of text as ceil(len/4).
func approxTokens(text string) int {
	return approxTokensLen(len(text))
}

func approxTokensLen(n int) int {
	return (n + charsPerToken - 1) / charsPerToken
}

// SplitDocument splits a document's text into whitespace-tokenized chunks of
// at most ~512 approximate tokens each. Word boundaries are never broken, so
// a chunk may marginally exceed the cap when a single word straddles it.
func SplitDocument(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0 // chars including joining spaces

	for _, w := range words {
		addLen := len(w)
		if len(current) > 0 {
			addLen++ // joining space
		}
		if len(current) > 0 && approxTokensLen(currentLen+addLen) > maxChunkTokens {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			currentLen = 0
			addLen = len(w)
		}
		current = append(current, w)
		currentLen += addLen
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
