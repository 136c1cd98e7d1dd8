// Package entities pulls scheduling entities out of free-text messages:
// the patient name, the requested slot, and the clinic location.
package entities

import (
	"regexp"
	"strings"
	"time"

	"github.com/jdkato/prose/v2"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"go.uber.org/zap"
)

// Entities is the extraction result for one message. SlotISO is empty when
// no time expression was found.
type Entities struct {
	Patient  string `json:"patient,omitempty"`
	SlotISO  string `json:"slot_iso,omitempty"`
	Location string `json:"location"`
}

// Known clinic locations, checked in order against the lowercased message.
// The first match wins; no match falls back to the default office.
var locations = []struct{ match, canonical string }{
	{"midtown", "Midtown"},
	{"uptown", "Uptown"},
	{"downtown", "Downtown"},
	{"brooklyn", "Brooklyn"},
	{"queens", "Queens"},
	{"bronx", "Bronx"},
	{"manhattan", "Manhattan"},
}

const defaultLocation = "Midtown"

// Name fallback patterns, tried in order when NER finds no person. The verb
// matches any case but the captured name must be capitalized, so "Book for
// tomorrow" yields nothing rather than "For".
var nameRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i:\b(?:book|schedule))\s+([A-Z][a-z]+)\b`),
	regexp.MustCompile(`\b(?:for|patient)\s+([A-Z][a-z]+)\b`),
	regexp.MustCompile(`\b([A-Z][a-z]+)\s+(?:tomorrow|today|next|at|for)\b`),
}

// nameStopwords are capitalized words the patterns (or NER) can catch that
// are never patient names.
var nameStopwords = map[string]struct{}{
	"Book": {}, "Schedule": {}, "Reschedule": {}, "Rebook": {}, "Move": {},
	"Make": {}, "Change": {}, "Cancel": {}, "Can": {}, "Could": {},
	"Please": {}, "The": {}, "What": {}, "Where": {}, "When": {}, "How": {},
	"Appointment": {}, "Tomorrow": {}, "Today": {}, "Next": {},
	"Midtown": {}, "Uptown": {}, "Downtown": {}, "Brooklyn": {},
	"Queens": {}, "Bronx": {}, "Manhattan": {},
}

// Extractor resolves entities against the server clock.
type Extractor struct {
	parser *when.Parser
	now    func() time.Time
	logger *zap.Logger
}

// NewExtractor builds an extractor with English plus common time rules.
func NewExtractor(logger *zap.Logger) *Extractor {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Extractor{parser: w, now: time.Now, logger: logger}
}

// Extract runs all three extractors over one message.
func (e *Extractor) Extract(text string) Entities {
	return Entities{
		Patient:  e.Patient(text),
		SlotISO:  e.Slot(text),
		Location: e.Location(text),
	}
}

// Slot parses the first natural-language time expression and returns it as
// an ISO-8601 UTC timestamp, or "" when the message names no time. Relative
// expressions resolve against the server clock.
func (e *Extractor) Slot(text string) string {
	r, err := e.parser.Parse(text, e.now())
	if err != nil {
		e.logger.Warn("time extraction failed", zap.Error(err))
		return ""
	}
	if r == nil {
		return ""
	}
	return r.Time.UTC().Format(time.RFC3339)
}

// Patient finds the patient's given name: NER person entities first, the
// fallback patterns second. Returns "" when nothing plausible is found.
func (e *Extractor) Patient(text string) string {
	if name := e.nerPerson(text); name != "" {
		return name
	}
	for _, re := range nameRes {
		if m := re.FindStringSubmatch(text); m != nil {
			if name := firstName(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

func (e *Extractor) nerPerson(text string) string {
	doc, err := prose.NewDocument(text)
	if err != nil {
		e.logger.Warn("ner failed", zap.Error(err))
		return ""
	}
	for _, ent := range doc.Entities() {
		if ent.Label != "PERSON" {
			continue
		}
		if name := firstName(ent.Text); name != "" {
			return name
		}
	}
	return ""
}

// firstName reduces a candidate span to its first capitalized non-stopword
// token.
func firstName(span string) string {
	for _, tok := range strings.Fields(span) {
		if _, stop := nameStopwords[tok]; stop {
			continue
		}
		if len(tok) >= 2 && tok[0] >= 'A' && tok[0] <= 'Z' &&
			strings.ToLower(tok[1:]) == tok[1:] {
			return tok
		}
	}
	return ""
}

// Location returns the canonical clinic location named in the message, or
// the default office.
func (e *Extractor) Location(text string) string {
	lower := strings.ToLower(text)
	for _, loc := range locations {
		if strings.Contains(lower, loc.match) {
			return loc.canonical
		}
	}
	return defaultLocation
}
