// Package extractor finds positioned, confidence-scored entity spans in
// free-form request text.
package extractor

import (
	"strconv"
	"strings"

	"github.com/govworks/foia/internal/patterns"
)

// Extraction methods.
const (
	MethodPattern   = "pattern"
	MethodHeuristic = "heuristic"
)

// ContextRadius is the number of bytes captured on each side of a match.
const ContextRadius = 50

// Span is a located entity. Start and End are byte offsets into the source.
type Span struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Context    string  `json:"context"`
}

// Extractor applies the request-level pattern table plus the name and
// organization heuristics. The zero value is not usable; call New.
type Extractor struct {
	patterns []patterns.Pattern
	denylist []string
}

// New creates an Extractor over the default request patterns.
func New() *Extractor {
	return &Extractor{
		patterns: patterns.RequestPatterns(),
		denylist: patterns.PersonDenylist(),
	}
}

// Extract returns every entity found in text, deduplicated on
// (type, value, start) with first-seen order preserved.
func (e *Extractor) Extract(text string) []Span {
	var spans []Span

	for _, p := range e.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			spans = append(spans, Span{
				Type:       p.Name,
				Value:      text[loc[0]:loc[1]],
				Start:      loc[0],
				End:        loc[1],
				Confidence: p.Confidence,
				Method:     MethodPattern,
				Context:    Window(text, loc[0], ContextRadius),
			})
		}
	}

	for _, loc := range patterns.PersonRegex.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		if e.isInstitutional(value) {
			continue
		}
		spans = append(spans, Span{
			Type:       patterns.TypePerson,
			Value:      value,
			Start:      loc[0],
			End:        loc[1],
			Confidence: patterns.PersonConfidence,
			Method:     MethodHeuristic,
			Context:    Window(text, loc[0], ContextRadius),
		})
	}

	for _, loc := range patterns.OrgRegex.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{
			Type:       patterns.TypeOrg,
			Value:      text[loc[0]:loc[1]],
			Start:      loc[0],
			End:        loc[1],
			Confidence: patterns.OrgConfidence,
			Method:     MethodPattern,
			Context:    Window(text, loc[0], ContextRadius),
		})
	}

	return dedupe(spans)
}

func (e *Extractor) isInstitutional(phrase string) bool {
	for _, d := range e.denylist {
		if strings.Contains(phrase, d) {
			return true
		}
	}
	return false
}

func dedupe(spans []Span) []Span {
	if len(spans) == 0 {
		return spans
	}

	seen := make(map[string]bool, len(spans))
	out := spans[:0]
	for _, s := range spans {
		key := s.Type + ":" + s.Value + ":" + strconv.Itoa(s.Start)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// Window returns text[start-radius : start+radius] clamped to the string
// bounds and to rune boundaries, trimmed of surrounding whitespace.
func Window(text string, start, radius int) string {
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := start + radius
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !isRuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !isRuneStart(text[hi]) {
		hi++
	}
	return strings.TrimSpace(text[lo:hi])
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// Persons returns the distinct PERSON values in first-seen order.
func Persons(spans []Span) []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range spans {
		if s.Type != patterns.TypePerson || seen[s.Value] {
			continue
		}
		seen[s.Value] = true
		names = append(names, s.Value)
	}
	return names
}
