// Package intent classifies a chat message into the schedule / knowledge
// label pair. Two interchangeable backends exist: a trained naive-Bayes
// word-n-gram model and a keyword rule set used when the model is
// unavailable. Callers only see the resulting label vector.
package intent

import (
	"sort"

	"go.uber.org/zap"

	"github.com/frontdesk-labs/concierge/internal/metrics"
)

// Label is one of the two intents the orchestrator dispatches on.
type Label string

const (
	LabelSchedule  Label = "schedule"
	LabelKnowledge Label = "knowledge"
)

// threshold is the confidence at which a label is considered present.
// Both labels may cross it at once (dual intent).
const threshold = 0.3

// Prediction is one label-score pair from a backend.
type Prediction struct {
	Label      Label
	Confidence float64
}

// Backend is the classifier capability: text in, label-score pairs out.
// Backends return no pairs when the message gives them nothing to go on.
type Backend interface {
	Predict(text string) []Prediction
	Name() string
}

// Vector is the orchestrator-facing result. Both flags false means the
// message was unclear and the caller should ask for clarification.
type Vector struct {
	Schedule  bool `json:"schedule"`
	Knowledge bool `json:"knowledge"`
}

func (v Vector) String() string {
	switch {
	case v.Schedule && v.Knowledge:
		return "dual"
	case v.Schedule:
		return "schedule"
	case v.Knowledge:
		return "knowledge"
	default:
		return "unclear"
	}
}

// Classifier applies the threshold rule over a backend's predictions.
type Classifier struct {
	backend Backend
	logger  *zap.Logger
}

// NewClassifier wraps a backend.
func NewClassifier(backend Backend, logger *zap.Logger) *Classifier {
	return &Classifier{backend: backend, logger: logger}
}

// Predict returns the label vector for a message. Labels at or above the
// confidence threshold are set; when none crosses it, the top-scoring label
// is set. A backend returning no predictions yields the unclear vector.
func (c *Classifier) Predict(message string) Vector {
	preds := c.backend.Predict(message)
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Confidence > preds[j].Confidence
	})

	var v Vector
	for _, p := range preds {
		if p.Confidence >= threshold {
			v = v.with(p.Label)
		}
	}
	if !v.Schedule && !v.Knowledge && len(preds) > 0 {
		v = v.with(preds[0].Label)
	}

	metrics.IntentPredictions.WithLabelValues(c.backend.Name(), v.String()).Inc()
	return v
}

func (v Vector) with(l Label) Vector {
	switch l {
	case LabelSchedule:
		v.Schedule = true
	case LabelKnowledge:
		v.Knowledge = true
	}
	return v
}
