package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/govworks/foia/internal/routing"
	"github.com/govworks/foia/internal/scope"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name         string
		analysis     scope.Analysis
		departments  int
		wantFee      Fee
		wantTimeline Timeline
	}{
		{
			name: "single department broad request",
			analysis: scope.Analysis{
				EstimatedDocuments: scope.DocumentRange{Min: 100, Max: 400},
				ComplexityScore:    0.4,
			},
			departments: 1,
			wantFee: Fee{Min: 23, Max: 53, Factors: []string{
				"1 department(s) to search",
				"Estimated 100-400 documents",
				"Review and redaction fees may apply",
				"First 2 hours of staff time may be free",
			}},
			wantTimeline: Timeline{Days: 20, BusinessDays: 20, CalendarDays: 28, Confidence: 0.85, Factors: []string{
				"Base response time: 10 days",
				"High volume: +6 days",
			}},
		},
		{
			name: "no departments",
			analysis: scope.Analysis{
				EstimatedDocuments: scope.DocumentRange{Min: 25, Max: 100},
				ComplexityScore:    0.2,
			},
			departments: 0,
			wantFee: Fee{Min: 2, Max: 9, Factors: []string{
				"0 department(s) to search",
				"Estimated 25-100 documents",
				"Review and redaction fees may apply",
				"First 2 hours of staff time may be free",
			}},
			wantTimeline: Timeline{Days: 14, BusinessDays: 14, CalendarDays: 20, Confidence: 0.85, Factors: []string{
				"Base response time: 10 days",
				"High volume: +2 days",
			}},
		},
		{
			name: "complex multi department",
			analysis: scope.Analysis{
				EstimatedDocuments: scope.DocumentRange{Min: 280, Max: 1120},
				ComplexityScore:    1,
			},
			departments: 4,
			wantFee: Fee{Min: 81, Max: 165, Factors: []string{
				"4 department(s) to search",
				"Estimated 280-1120 documents",
				"Review and redaction fees may apply",
				"First 2 hours of staff time may be free",
			}},
			wantTimeline: Timeline{Days: 39, BusinessDays: 39, CalendarDays: 55, Confidence: 0.65, Factors: []string{
				"Base response time: 10 days",
				"Complex request: +10 days",
				"High volume: +14 days",
				"Multiple departments: +5 days",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimate(tt.analysis, make([]routing.Candidate, tt.departments))
			assert.Equal(t, tt.wantFee, got.Fee)
			assert.Equal(t, tt.wantTimeline, got.Timeline)
		})
	}
}

func TestEstimate_ConfidenceAtThreshold(t *testing.T) {
	got := Estimate(scope.Analysis{ComplexityScore: 0.5}, nil)
	assert.Equal(t, 0.65, got.Timeline.Confidence)
	assert.NotContains(t, got.Timeline.Factors, "Complex request: +5 days")
}
