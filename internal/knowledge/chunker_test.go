package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitDocumentShortTextSingleChunk(t *testing.T) {
	chunks := SplitDocument("Our late policy: patients arriving late are rescheduled.")
	require.Len(t, chunks, 1)
	require.Equal(t, "Our late policy: patients arriving late are rescheduled.", chunks[0])
}

func TestSplitDocumentEmpty(t *testing.T) {
	require.Nil(t, SplitDocument(""))
	require.Nil(t, SplitDocument("   \n\t  "))
}

func TestSplitDocumentRespectsSoftCap(t *testing.T) {
	// ~6000 chars of 9-char words: well past one 512-token (~2048 char) chunk.
	word := "insurance"
	text := strings.TrimSpace(strings.Repeat(word+" ", 600))

	chunks := SplitDocument(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.LessOrEqual(t, approxTokens(c), maxChunkTokens+approxTokens(word)+1)
	}

	// Order is preserved and nothing is lost.
	require.Equal(t, text, strings.Join(chunks, " "))
}

func TestSplitDocumentNormalizesWhitespace(t *testing.T) {
	chunks := SplitDocument("hours:\n\n9am  to 5pm")
	require.Equal(t, []string{"hours: 9am to 5pm"}, chunks)
}

func TestApproxTokens(t *testing.T) {
	require.Equal(t, 0, approxTokens(""))
	require.Equal(t, 1, approxTokens("abc"))
	require.Equal(t, 1, approxTokens("abcd"))
	require.Equal(t, 2, approxTokens("abcde"))
}
