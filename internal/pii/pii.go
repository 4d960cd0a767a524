// Package pii detects personally identifiable information in extracted
// document text.
//
// Raw matches never leave this package. Detection values are always the
// Redacted placeholder, contexts have the match replaced, and the form
// persisted through a Sink comes from Mask.
package pii

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/models"
	"github.com/govworks/foia/internal/patterns"
)

const (
	// Redacted replaces every detected value in returned results.
	Redacted = "***REDACTED***"
	// ContextRadius is the number of bytes kept on each side of a match.
	ContextRadius = 50

	contextMask = "***"
	defaultPage = 1
)

// Sink persists detected items. Implementations receive masked values only.
type Sink interface {
	CreateDetectedPII(ctx context.Context, item *models.DetectedPII) error
}

// Position is the byte range of a match in the source text.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Detection is a PII finding safe to hand to callers.
type Detection struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Value      string    `json:"value"`
	Position   Position  `json:"position"`
	Confidence float64   `json:"confidence"`
	Context    string    `json:"context"`
}

// Detector applies the document pattern table with secondary validation.
type Detector struct {
	patterns []patterns.Pattern
	sink     Sink
}

// NewDetector creates a Detector. A nil sink skips persistence and
// assigns fresh ids.
func NewDetector(sink Sink) *Detector {
	return &Detector{
		patterns: patterns.DocumentPatterns(),
		sink:     sink,
	}
}

type match struct {
	pattern patterns.Pattern
	start   int
	end     int
}

// Detect finds every PII match in text and records it under analysisID.
// A persistence failure aborts detection and is returned.
func (d *Detector) Detect(ctx context.Context, text string, analysisID uuid.UUID) ([]Detection, error) {
	var matches []match
	for _, p := range d.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			matches = append(matches, match{pattern: p, start: loc[0], end: loc[1]})
		}
	}
	spans := mergeSpans(matches)

	detections := make([]Detection, 0, len(matches))
	for _, m := range matches {
		raw := text[m.start:m.end]
		confidence := adjustConfidence(m.pattern, raw)
		snippet := maskedContext(text, spans, m.start, m.end)

		item := &models.DetectedPII{
			ID:         uuid.New(),
			AnalysisID: analysisID,
			PIIType:    m.pattern.Name,
			Value:      Mask(raw),
			PageNumber: defaultPage,
			Confidence: confidence,
			Context:    snippet,
		}
		if d.sink != nil {
			if err := d.sink.CreateDetectedPII(ctx, item); err != nil {
				return nil, fmt.Errorf("storing %s detection: %w", m.pattern.Name, err)
			}
		}

		detections = append(detections, Detection{
			ID:         item.ID,
			Type:       m.pattern.Name,
			Value:      Redacted,
			Position:   Position{Start: m.start, End: m.end},
			Confidence: confidence,
			Context:    snippet,
		})
	}

	return detections, nil
}

func adjustConfidence(p patterns.Pattern, raw string) float64 {
	switch p.Name {
	case patterns.TypeCreditCard:
		if !ValidateLuhn(raw) {
			return patterns.FailedLuhnConfidence
		}
	case patterns.TypeSSN:
		if !ValidateSSN(raw) {
			return patterns.InvalidSSNConfidence
		}
	}
	return p.Confidence
}

// Mask turns a raw value into its storable form: the first and last two
// characters wrapped in asterisks. Values of four characters or fewer are
// masked entirely.
func Mask(value string) string {
	if utf8.RuneCountInString(value) <= 4 {
		return contextMask
	}
	r := []rune(value)
	return contextMask + string(r[:2]) + "..." + string(r[len(r)-2:]) + contextMask
}

// mergeSpans returns the matched byte ranges sorted and coalesced.
func mergeSpans(matches []match) []Position {
	spans := make([]Position, 0, len(matches))
	for _, m := range matches {
		spans = append(spans, Position{Start: m.start, End: m.end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	merged := spans[:0]
	for _, sp := range spans {
		if n := len(merged); n > 0 && sp.Start <= merged[n-1].End {
			if sp.End > merged[n-1].End {
				merged[n-1].End = sp.End
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}

// maskedContext returns the text around [start, end) with every detected
// span in the window replaced, so no raw PII survives in the snippet.
func maskedContext(text string, spans []Position, start, end int) string {
	lo := start - ContextRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + ContextRadius
	if hi > len(text) {
		hi = len(text)
	}

	var b strings.Builder
	pos := lo
	for _, sp := range spans {
		if sp.End <= lo || sp.Start >= hi {
			continue
		}
		if sp.Start > pos {
			b.WriteString(text[pos:sp.Start])
		}
		b.WriteString(contextMask)
		pos = sp.End
	}
	if pos < hi {
		b.WriteString(text[pos:hi])
	}
	return strings.ToValidUTF8(b.String(), "")
}
