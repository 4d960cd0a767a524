// Package redaction proposes how each detected PII item should be redacted
// and defines the review state machine for those proposals.
package redaction

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/models"
	"github.com/govworks/foia/internal/patterns"
	"github.com/govworks/foia/internal/pii"
)

// Suggestion is a proposed redaction for one detected item.
type Suggestion struct {
	ID      uuid.UUID              `json:"id"`
	PIIID   uuid.UUID              `json:"piiId"`
	PIIType string                 `json:"piiType"`
	Method  models.RedactionMethod `json:"method"`
	Reason  string                 `json:"reason"`
	Status  models.RedactionStatus `json:"status"`
}

// Rule returns the redaction method and reason for a PII type.
func Rule(piiType string) (models.RedactionMethod, string) {
	switch piiType {
	case patterns.TypeEmail, patterns.TypePhone:
		return models.RedactionMethodReplace, fmt.Sprintf("%s constitutes personal contact information", piiType)
	case patterns.TypeSSN, patterns.TypeCreditCard:
		return models.RedactionMethodBlackBox, fmt.Sprintf("%s is highly sensitive personal information", piiType)
	case patterns.TypeAddress:
		return models.RedactionMethodBlackBox, "Home address may reveal personal privacy information"
	default:
		return models.RedactionMethodBlackBox, fmt.Sprintf("Protect %s", piiType)
	}
}

// Suggest yields exactly one suggestion per detection, in order, all in
// the suggested state.
func Suggest(detections []pii.Detection) []Suggestion {
	out := make([]Suggestion, 0, len(detections))
	for _, d := range detections {
		method, reason := Rule(d.Type)
		out = append(out, Suggestion{
			ID:      uuid.New(),
			PIIID:   d.ID,
			PIIType: d.Type,
			Method:  method,
			Reason:  reason,
			Status:  models.RedactionSuggested,
		})
	}
	return out
}

// Record converts a suggestion into its persisted form.
func (s Suggestion) Record() *models.RedactionSuggestion {
	return &models.RedactionSuggestion{
		ID:              s.ID,
		PIIID:           s.PIIID,
		Status:          s.Status,
		RedactionMethod: s.Method,
		Reason:          s.Reason,
	}
}

var transitions = map[models.RedactionStatus][]models.RedactionStatus{
	models.RedactionSuggested: {models.RedactionApproved, models.RedactionRejected},
	models.RedactionApproved:  {models.RedactionApplied},
}

// CanTransition reports whether a suggestion may move from one review
// state to another. The machine is monotonic: suggested, then approved or
// rejected, then applied for approved items only.
func CanTransition(from, to models.RedactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
