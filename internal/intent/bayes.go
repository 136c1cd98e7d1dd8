package intent

import (
	"bufio"
	"embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/jbrukh/bayesian"
)

//go:embed data/intents.txt
var corpusFS embed.FS

const corpusPath = "data/intents.txt"

var (
	classSchedule  = bayesian.Class(string(LabelSchedule))
	classKnowledge = bayesian.Class(string(LabelKnowledge))
)

// segmentRe cuts a message into independently classified clauses so that a
// message asking a question and booking an appointment in one breath scores
// high on both labels instead of averaging out to one.
var segmentRe = regexp.MustCompile(`(?i)\s+and\s+|\s+also\s+|[,;?]`)

// BayesBackend is a naive-Bayes word n-gram model trained from the embedded
// labeled corpus at construction time.
type BayesBackend struct {
	cls   *bayesian.Classifier
	vocab map[string]struct{}
}

// NewBayesBackend trains the model from the embedded corpus. Each corpus
// line is "label<TAB>text".
func NewBayesBackend() (*BayesBackend, error) {
	f, err := corpusFS.Open(corpusPath)
	if err != nil {
		return nil, fmt.Errorf("open intent corpus: %w", err)
	}
	defer f.Close()

	b := &BayesBackend{
		cls:   bayesian.NewClassifier(classSchedule, classKnowledge),
		vocab: make(map[string]struct{}),
	}

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		label, text, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("intent corpus line %q: missing tab separator", line)
		}
		var class bayesian.Class
		switch Label(label) {
		case LabelSchedule:
			class = classSchedule
		case LabelKnowledge:
			class = classKnowledge
		default:
			return nil, fmt.Errorf("intent corpus line %q: unknown label %q", line, label)
		}
		feats := features(text)
		b.cls.Learn(feats, class)
		for _, ft := range feats {
			b.vocab[ft] = struct{}{}
		}
		lines++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read intent corpus: %w", err)
	}
	if lines == 0 {
		return nil, fmt.Errorf("intent corpus %s is empty", corpusPath)
	}
	return b, nil
}

func (b *BayesBackend) Name() string { return "bayes" }

// Predict classifies each clause of the message and keeps the best score
// seen per label. Clauses with no in-vocabulary token are skipped; a message
// made entirely of unknown words yields no predictions.
func (b *BayesBackend) Predict(text string) []Prediction {
	best := map[Label]float64{}
	for _, seg := range segmentRe.Split(text, -1) {
		feats := b.known(features(seg))
		if len(feats) == 0 {
			continue
		}
		scores, _, _ := b.cls.ProbScores(feats)
		b.keepMax(best, LabelSchedule, scores[0])
		b.keepMax(best, LabelKnowledge, scores[1])
	}
	if len(best) == 0 {
		return nil
	}
	return []Prediction{
		{Label: LabelSchedule, Confidence: best[LabelSchedule]},
		{Label: LabelKnowledge, Confidence: best[LabelKnowledge]},
	}
}

func (b *BayesBackend) keepMax(m map[Label]float64, l Label, score float64) {
	if score > m[l] {
		m[l] = score
	}
}

func (b *BayesBackend) known(feats []string) []string {
	out := feats[:0]
	for _, ft := range feats {
		if _, ok := b.vocab[ft]; ok {
			out = append(out, ft)
		}
	}
	return out
}

var wordRe = regexp.MustCompile(`[a-z0-9']+`)

// features produces lowercase unigrams plus adjacent bigrams, so fixed
// phrases like "make it" carry their own weight.
func features(text string) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	feats := make([]string, 0, len(words)*2)
	feats = append(feats, words...)
	for i := 0; i+1 < len(words); i++ {
		feats = append(feats, words[i]+"_"+words[i+1])
	}
	return feats
}
