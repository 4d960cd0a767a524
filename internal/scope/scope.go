// Package scope estimates how large and how clear a records request is.
package scope

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/govworks/foia/internal/extractor"
	"github.com/govworks/foia/internal/patterns"
	"github.com/govworks/foia/internal/routing"
)

// Ambiguity severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Timeframe values.
const (
	TimeframeSpecified   = "specified"
	TimeframeUnspecified = "unspecified"
)

var (
	dateRangeRegex  = regexp.MustCompile(`(?i)\b(?:from|between|during|since|through)\b|\bto\s+\d`)
	breadthRegex    = regexp.MustCompile(`(?i)\b(?:all|every|any|complete|entire|comprehensive)\b`)
	allCommsRegex   = regexp.MustCompile(`(?i)\ball\s+(?:communications?|correspondence|emails?)\b`)
	inlineDateRegex = patterns.DateRegex()
)

// DocumentRange is an inclusive estimate of responsive documents.
type DocumentRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Ambiguity is a clarity problem found in the request text.
type Ambiguity struct {
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
	Severity   string `json:"severity"`
}

// Analysis summarizes the size and clarity of a request.
type Analysis struct {
	EstimatedDocuments DocumentRange `json:"estimatedDocuments"`
	EstimatedTimeframe string        `json:"estimatedTimeframe"`
	ComplexityScore    float64       `json:"complexityScore"`
	Ambiguities        []Ambiguity   `json:"ambiguities"`
	HasDateRange       bool          `json:"hasDateRange"`
	HasMultiple        bool          `json:"hasMultiple"`
	DepartmentCount    int           `json:"departmentCount"`
	WordCount          int           `json:"wordCount"`
}

// HasDateRange reports whether text names a time window, either through a
// range connector or an inline date.
func HasDateRange(text string) bool {
	return dateRangeRegex.MatchString(text) || inlineDateRegex.MatchString(text)
}

// HasBreadthTerms reports whether text uses words like "all" or "every".
func HasBreadthTerms(text string) bool {
	return breadthRegex.MatchString(text)
}

// Analyze derives the volume estimate, complexity score and ambiguity list.
func Analyze(text string, entities []extractor.Span, departments []routing.Candidate) Analysis {
	wordCount := len(strings.Fields(text))
	hasDateRange := HasDateRange(text)
	hasMultiple := HasBreadthTerms(text)
	deptCount := len(departments)

	complexity := 0.0
	switch {
	case wordCount > 100:
		complexity += 0.2
	case wordCount > 50:
		complexity += 0.1
	}
	// A missing date range raises complexity here and is also reported
	// separately as an ambiguity below. The two rules are independent.
	if hasDateRange {
		complexity += 0.1
	} else {
		complexity += 0.2
	}
	if hasMultiple {
		complexity += 0.3
	}
	switch {
	case deptCount > 2:
		complexity += 0.2
	case deptCount > 1:
		complexity += 0.1
	}
	switch {
	case len(entities) > 5:
		complexity += 0.2
	case len(entities) > 3:
		complexity += 0.1
	}
	complexity = math.Max(0, math.Min(complexity, 1))

	base := 50.0
	if hasMultiple {
		base = 200
	}
	multiplier := 1.0
	if deptCount > 1 {
		multiplier = float64(deptCount) * 0.7
	}

	timeframe := TimeframeUnspecified
	if hasDateRange {
		timeframe = TimeframeSpecified
	}

	return Analysis{
		EstimatedDocuments: DocumentRange{
			Min: int(math.Round(base * multiplier * 0.5)),
			Max: int(math.Round(base * multiplier * 2)),
		},
		EstimatedTimeframe: timeframe,
		ComplexityScore:    math.Round(complexity*100) / 100,
		Ambiguities:        ambiguities(text, entities, wordCount, hasDateRange, hasMultiple),
		HasDateRange:       hasDateRange,
		HasMultiple:        hasMultiple,
		DepartmentCount:    deptCount,
		WordCount:          wordCount,
	}
}

func ambiguities(text string, entities []extractor.Span, wordCount int, hasDateRange, hasMultiple bool) []Ambiguity {
	out := []Ambiguity{}

	if allCommsRegex.MatchString(text) {
		out = append(out, Ambiguity{
			Issue:      `"All communications" is very broad and may result in thousands of documents`,
			Suggestion: "Consider specifying: emails only, or include texts/calls? Specific date range?",
			Severity:   SeverityHigh,
		})
	}

	if hasMultiple && !hasDateRange {
		out = append(out, Ambiguity{
			Issue:      "No date range specified for a broad request",
			Suggestion: `Adding a date range (e.g., "from January 2024 to June 2024") will significantly speed up processing`,
			Severity:   SeverityMedium,
		})
	}

	if names := extractor.Persons(entities); len(names) > 1 {
		out = append(out, Ambiguity{
			Issue:      fmt.Sprintf("Multiple people mentioned: %s", strings.Join(names, ", ")),
			Suggestion: "Clarify which person's records you need, or confirm you need records for all mentioned individuals",
			Severity:   SeverityMedium,
		})
	}

	if wordCount < 20 {
		out = append(out, Ambiguity{
			Issue:      "Request is very brief and may lack necessary detail",
			Suggestion: "Consider adding more context about what specific records or information you're seeking",
			Severity:   SeverityLow,
		})
	}

	return out
}
