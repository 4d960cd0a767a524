// Package doctype assigns a document type from keyword signatures.
package doctype

import (
	"math"
	"strings"

	"github.com/govworks/foia/internal/patterns"
)

// TypeOther is returned when no signature clears the threshold.
const TypeOther = "other"

// MinScore is the share of a signature's keywords a document must contain.
// It is also the confidence reported for TypeOther.
const MinScore = 0.2

// Result is a classification outcome.
type Result struct {
	Type       string             `json:"type"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores"`
}

// Classifier scores text against the document type table.
type Classifier struct {
	types []patterns.DocumentType
}

// New creates a Classifier over the default signatures.
func New() *Classifier {
	return &Classifier{types: patterns.DocumentTypes()}
}

// Classify scores each type by the fraction of its keywords present as
// case-insensitive substrings. Ties go to the earlier table entry.
func (c *Classifier) Classify(text string) Result {
	lower := strings.ToLower(text)
	scores := make(map[string]float64, len(c.types))

	bestType := ""
	bestScore := 0.0
	for _, dt := range c.types {
		if len(dt.Keywords) == 0 {
			continue
		}
		found := 0
		for _, kw := range dt.Keywords {
			if strings.Contains(lower, kw) {
				found++
			}
		}
		score := float64(found) / float64(len(dt.Keywords))
		scores[dt.Type] = score
		if score > bestScore {
			bestType = dt.Type
			bestScore = score
		}
	}

	if bestScore <= MinScore {
		return Result{Type: TypeOther, Confidence: MinScore, Scores: scores}
	}
	return Result{Type: bestType, Confidence: math.Min(bestScore, 1), Scores: scores}
}
