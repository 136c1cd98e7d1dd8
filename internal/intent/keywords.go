package intent

import "strings"

// Keyword rule fallback, used when the trained model cannot be built. The
// schedule set wins outright: a message matching both sets is treated as a
// scheduling request only.
var (
	scheduleKeywords = []string{
		"book", "schedule", "appointment", "reschedule", "change", "move",
		"make it", "change to", "rebook", "slot",
	}
	knowledgeKeywords = []string{
		"what", "where", "how", "when", "why", "tell me", "policy",
		"parking", "hours", "insurance", "prepare", "bring", "access",
		"grace", "late", "cancellation", "location", "office",
	}
)

// KeywordBackend matches fixed keyword sets against the lowercased message.
type KeywordBackend struct{}

func NewKeywordBackend() *KeywordBackend { return &KeywordBackend{} }

func (k *KeywordBackend) Name() string { return "keyword" }

// Predict emits a full-confidence pair per matched label and nothing for a
// message matching neither set.
func (k *KeywordBackend) Predict(text string) []Prediction {
	lower := strings.ToLower(text)
	schedule := containsAny(lower, scheduleKeywords)
	knowledge := !schedule && containsAny(lower, knowledgeKeywords)

	var preds []Prediction
	if schedule {
		preds = append(preds, Prediction{Label: LabelSchedule, Confidence: 1})
	}
	if knowledge {
		preds = append(preds, Prediction{Label: LabelKnowledge, Confidence: 1})
	}
	return preds
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
