// Package exemption suggests statutory withholding categories (b1 to b9)
// for a document based on keyword evidence.
package exemption

import (
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/models"
	"github.com/govworks/foia/internal/patterns"
)

// Threshold is the score an exemption must exceed to be suggested.
const Threshold = 0.3

// Classification is a suggested exemption.
type Classification struct {
	ID              uuid.UUID `json:"id"`
	Type            string    `json:"type"`
	Name            string    `json:"name"`
	Confidence      float64   `json:"confidence"`
	Reasoning       string    `json:"reasoning"`
	MatchedKeywords []string  `json:"-"`
}

// Classifier scores text against the exemption table.
type Classifier struct {
	exemptions []patterns.Exemption
}

// New creates a Classifier over the b1..b9 table.
func New() *Classifier {
	return &Classifier{exemptions: patterns.Exemptions()}
}

// Classify scores each exemption as matched/total keywords times its base
// confidence and returns those scoring above Threshold, in table order.
func (c *Classifier) Classify(text string) []Classification {
	lower := strings.ToLower(text)
	out := []Classification{}

	for _, ex := range c.exemptions {
		if len(ex.Keywords) == 0 {
			continue
		}
		var matched []string
		for _, kw := range ex.Keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}

		score := float64(len(matched)) / float64(len(ex.Keywords)) * ex.BaseConfidence
		if score <= Threshold {
			continue
		}
		out = append(out, Classification{
			ID:              uuid.New(),
			Type:            ex.Code,
			Name:            ex.Name,
			Confidence:      math.Min(score, 1),
			Reasoning:       "Detected keywords: " + strings.Join(matched, ", "),
			MatchedKeywords: matched,
		})
	}
	return out
}

// Record converts a classification into its persisted form under analysisID.
func (c Classification) Record(analysisID uuid.UUID) *models.ExemptionClassification {
	return &models.ExemptionClassification{
		ID:             c.ID,
		AnalysisID:     analysisID,
		ExemptionType:  c.Type,
		ExemptionName:  c.Name,
		Confidence:     c.Confidence,
		Reasoning:      c.Reasoning,
		PageReferences: models.Int64Array{1},
		Status:         models.ExemptionSuggested,
	}
}
