package answer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitSentencesBasic(t *testing.T) {
	text := "Our late policy is strict. Patients arriving more than 15 minutes late are rescheduled. Please plan ahead of time."
	got := SplitSentences(text)
	require.Equal(t, []string{
		"Our late policy is strict.",
		"Patients arriving more than 15 minutes late are rescheduled.",
		"Please plan ahead of time.",
	}, got)
}

func TestSplitSentencesStripsBanners(t *testing.T) {
	text := "=== Policies === Patients arriving late are rescheduled immediately."
	got := SplitSentences(text)
	require.Equal(t, []string{"Patients arriving late are rescheduled immediately."}, got)
}

func TestSplitSentencesBlankLineBlocks(t *testing.T) {
	text := "Parking is available in the garage.\n\nInsurance cards are required at check-in."
	got := SplitSentences(text)
	require.Len(t, got, 2)
}

func TestSplitSentencesKeepsLowercaseContinuation(t *testing.T) {
	// Punctuation followed by a lowercase letter is not a boundary.
	text := "We open at 9 a.m. and close at 5 p.m. every weekday, all year long."
	got := SplitSentences(text)
	require.Len(t, got, 1)
}

func TestSplitSentencesResplitsLongSentences(t *testing.T) {
	long := strings.Repeat("insurance coverage details and more words here, ", 6) + "ending clause. " +
		"then another part without capital start"
	got := SplitSentences(long)
	require.NotEmpty(t, got)
	for _, s := range got {
		require.True(t, strings.HasSuffix(s, "."), "sentence %q must be re-terminated", s)
	}
}

func TestSplitSentencesDropsShortFragments(t *testing.T) {
	got := SplitSentences("A short lead-in. The actual policy sentence lives right here.")
	require.Equal(t, []string{"A short lead-in.", "The actual policy sentence lives right here."}, got)

	got = SplitSentences("Tiny. Bit. The actual policy sentence lives right here.")
	require.Equal(t, []string{"The actual policy sentence lives right here."}, got)
}

func TestSplitSentencesDeduplicates(t *testing.T) {
	text := "Arrive fifteen minutes early. Arrive fifteen minutes early. Bring your card as well."
	got := SplitSentences(text)
	require.Equal(t, []string{"Arrive fifteen minutes early.", "Bring your card as well."}, got)
}

func TestSplitSentencesExcludesOversized(t *testing.T) {
	// A single unbroken run over 500 chars with no split points is excluded.
	huge := strings.Repeat("x", 501) + "."
	require.Empty(t, SplitSentences(huge))
}

func TestSplitSentencesEmptyInput(t *testing.T) {
	require.Empty(t, SplitSentences(""))
	require.Empty(t, SplitSentences("=== only a banner ==="))
}
