// Package estimate turns a scope analysis into fee and response-time
// ranges with itemized factors.
package estimate

import (
	"fmt"
	"math"

	"github.com/govworks/foia/internal/routing"
	"github.com/govworks/foia/internal/scope"
)

const (
	searchFeePerDepartment = 15
	reviewFeePerPage       = 0.10
	copyFeePerPage         = 0.05
	minFeeReviewShare      = 0.3

	baseDays            = 10
	multiDeptDays       = 5
	calendarDayFactor   = 1.4
	simpleConfidence    = 0.85
	complexConfidence   = 0.65
	complexityThreshold = 0.5
)

// Fee is a dollar range.
type Fee struct {
	Min     int      `json:"min"`
	Max     int      `json:"max"`
	Factors []string `json:"factors"`
}

// Timeline is an expected response time.
type Timeline struct {
	Days         int      `json:"days"`
	BusinessDays int      `json:"businessDays"`
	CalendarDays int      `json:"calendarDays"`
	Confidence   float64  `json:"confidence"`
	Factors      []string `json:"factors"`
}

// Result pairs the fee and timeline estimates.
type Result struct {
	Fee      Fee      `json:"fee"`
	Timeline Timeline `json:"timeline"`
}

// Estimate computes fee and timeline from the scope analysis and the
// departments that must be searched.
func Estimate(a scope.Analysis, departments []routing.Candidate) Result {
	deptCount := len(departments)
	docs := a.EstimatedDocuments
	avgDocs := float64(docs.Min+docs.Max) / 2

	searchFee := float64(deptCount * searchFeePerDepartment)
	reviewFee := avgDocs * reviewFeePerPage
	copyFee := avgDocs * copyFeePerPage

	fee := Fee{
		Min: int(math.Max(0, math.Round(searchFee+reviewFee*minFeeReviewShare))),
		Max: int(math.Round(searchFee + reviewFee + copyFee)),
		Factors: []string{
			fmt.Sprintf("%d department(s) to search", deptCount),
			fmt.Sprintf("Estimated %d-%d documents", docs.Min, docs.Max),
			"Review and redaction fees may apply",
			"First 2 hours of staff time may be free",
		},
	}

	complexityDays := int(math.Round(a.ComplexityScore * 10))
	volumeDays := int(math.Round(avgDocs/100)) * 2
	deptDays := 0
	if deptCount > 2 {
		deptDays = multiDeptDays
	}
	total := baseDays + complexityDays + volumeDays + deptDays

	confidence := complexConfidence
	if a.ComplexityScore < complexityThreshold {
		confidence = simpleConfidence
	}

	factors := []string{fmt.Sprintf("Base response time: %d days", baseDays)}
	if a.ComplexityScore > complexityThreshold {
		factors = append(factors, fmt.Sprintf("Complex request: +%d days", complexityDays))
	}
	if volumeDays > 0 {
		factors = append(factors, fmt.Sprintf("High volume: +%d days", volumeDays))
	}
	if deptDays > 0 {
		factors = append(factors, fmt.Sprintf("Multiple departments: +%d days", deptDays))
	}

	return Result{
		Fee: fee,
		Timeline: Timeline{
			Days:         total,
			BusinessDays: total,
			CalendarDays: int(math.Round(float64(total) * calendarDayFactor)),
			Confidence:   confidence,
			Factors:      factors,
		},
	}
}
