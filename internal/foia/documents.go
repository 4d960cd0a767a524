package foia

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/doctype"
	"github.com/govworks/foia/internal/exemption"
	"github.com/govworks/foia/internal/models"
	"github.com/govworks/foia/internal/pii"
	"github.com/govworks/foia/internal/redaction"
)

const (
	defaultPageCount         = 1
	redactionsApprovedNotice = "Redactions approved. Apply to document using PDF processor."
)

// DocumentOptions carries optional document metadata.
type DocumentOptions struct {
	PageCount int
}

// DocumentResult is the outcome of analyzing one document.
type DocumentResult struct {
	AnalysisID           uuid.UUID                  `json:"analysisId"`
	DocumentID           uuid.UUID                  `json:"documentId"`
	DocumentType         doctype.Result             `json:"documentType"`
	DetectedPII          []pii.Detection            `json:"detectedPII"`
	Exemptions           []exemption.Classification `json:"exemptions"`
	RedactionSuggestions []redaction.Suggestion     `json:"redactionSuggestions"`
	ProcessingTime       int64                      `json:"processingTime"`
}

// ApplyResult reports a redaction approval.
type ApplyResult struct {
	Success       bool   `json:"success"`
	ApprovedCount int    `json:"approvedCount"`
	Message       string `json:"message"`
}

// DocumentAnalyzer classifies documents, finds PII and suggests
// exemptions and redactions.
type DocumentAnalyzer struct {
	hooks
	store      DocumentStore
	classifier *doctype.Classifier
	detector   *pii.Detector
	exemptions *exemption.Classifier
}

func NewDocumentAnalyzer(store DocumentStore, opts ...Option) *DocumentAnalyzer {
	d := &DocumentAnalyzer{
		hooks:      defaultHooks(),
		store:      store,
		classifier: doctype.New(),
		detector:   pii.NewDetector(store),
		exemptions: exemption.New(),
	}
	for _, opt := range opts {
		opt(&d.hooks)
	}
	return d
}

// AnalyzeDocument runs the document flow for documentID. The stored
// analysis is completed on success and marked failed otherwise.
func (d *DocumentAnalyzer) AnalyzeDocument(ctx context.Context, documentID uuid.UUID, text string, opts DocumentOptions) (result *DocumentResult, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	start := d.now()
	defer func() {
		if d.recorder != nil {
			var detections []pii.Detection
			if result != nil {
				detections = result.DetectedPII
			}
			d.recorder.ObserveDocumentAnalysis(d.now().Sub(start), detections, err)
		}
	}()

	record, err := d.findOrCreate(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := d.store.ResetDocumentAnalysis(ctx, record.ID); err != nil {
		return nil, fmt.Errorf("resetting document analysis: %w", err)
	}

	result, err = d.analyze(ctx, record, text, opts)
	if err != nil {
		bestEffort(ctx, d.logger, "mark_failed", func(ctx context.Context) error {
			return d.store.SetDocumentProcessingStatus(ctx, record.ID, models.ProcessingFailed)
		})
		d.logger.Error("document analysis failed", "document_id", documentID, "analysis_id", record.ID, "error", err)
		return nil, err
	}

	d.publish(ctx, documentEvent(result, d.now()))
	return result, nil
}

func (d *DocumentAnalyzer) findOrCreate(ctx context.Context, documentID uuid.UUID) (*models.DocumentAnalysis, error) {
	existing, err := d.store.GetDocumentAnalysisByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading document analysis: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	record := &models.DocumentAnalysis{
		ID:               uuid.New(),
		DocumentID:       documentID,
		ProcessingStatus: models.ProcessingPending,
	}
	if err := d.store.CreateDocumentAnalysis(ctx, record); err != nil {
		return nil, fmt.Errorf("creating document analysis: %w", err)
	}
	return record, nil
}

func (d *DocumentAnalyzer) analyze(ctx context.Context, record *models.DocumentAnalysis, text string, opts DocumentOptions) (*DocumentResult, error) {
	start := d.now()

	docType := d.classifier.Classify(text)

	detections, err := d.detector.Detect(ctx, text, record.ID)
	if err != nil {
		return nil, fmt.Errorf("detecting pii: %w", err)
	}

	exemptions := d.exemptions.Classify(text)
	for _, ex := range exemptions {
		if err := d.store.CreateExemptionClassification(ctx, ex.Record(record.ID)); err != nil {
			return nil, fmt.Errorf("saving exemption %s: %w", ex.Type, err)
		}
	}

	suggestions := redaction.Suggest(detections)
	for _, s := range suggestions {
		if err := d.store.CreateRedactionSuggestion(ctx, s.Record()); err != nil {
			return nil, fmt.Errorf("saving redaction suggestion: %w", err)
		}
	}

	elapsed := d.now().Sub(start).Milliseconds()

	pages := opts.PageCount
	if pages <= 0 {
		pages = defaultPageCount
	}
	typeName := docType.Type
	confidence := docType.Confidence
	record.DocumentType = &typeName
	record.TypeConfidence = &confidence
	record.PageCount = &pages
	record.ProcessingStatus = models.ProcessingCompleted
	record.Metadata = models.JSONB{
		"processingTimeMs": elapsed,
		"piiCount":         len(detections),
		"exemptionCount":   len(exemptions),
		"redactionCount":   len(suggestions),
	}
	if err := d.store.UpdateDocumentAnalysis(ctx, record); err != nil {
		return nil, fmt.Errorf("completing document analysis: %w", err)
	}

	if detections == nil {
		detections = []pii.Detection{}
	}
	return &DocumentResult{
		AnalysisID:           record.ID,
		DocumentID:           record.DocumentID,
		DocumentType:         docType,
		DetectedPII:          detections,
		Exemptions:           exemptions,
		RedactionSuggestions: suggestions,
		ProcessingTime:       elapsed,
	}, nil
}

func documentEvent(r *DocumentResult, at time.Time) models.AnalysisEvent {
	counts := make(map[string]int)
	for _, det := range r.DetectedPII {
		counts[det.Type]++
	}
	codes := make([]string, 0, len(r.Exemptions))
	for _, ex := range r.Exemptions {
		codes = append(codes, ex.Type)
	}
	documentID := r.DocumentID
	return models.AnalysisEvent{
		Type:             models.EventDocumentAnalyzed,
		AnalysisID:       r.AnalysisID,
		DocumentID:       &documentID,
		DocumentType:     r.DocumentType.Type,
		PIICounts:        counts,
		Exemptions:       codes,
		Confidence:       r.DocumentType.Confidence,
		ProcessingTimeMs: r.ProcessingTime,
		OccurredAt:       at,
	}
}

// ApplyRedactions approves the named suggestions of an analysis. Other
// suggestions keep their status. The document itself is not modified.
func (d *DocumentAnalyzer) ApplyRedactions(ctx context.Context, analysisID uuid.UUID, ids []uuid.UUID, actor Actor) (*ApplyResult, error) {
	n, err := d.store.ApproveRedactions(ctx, analysisID, ids, actor.idPtr())
	if err != nil {
		return nil, fmt.Errorf("approving redactions: %w", err)
	}

	d.logActivity(ctx, &models.ActivityLog{
		ActivityType: models.ActivityRedactionReviewed,
		Action:       fmt.Sprintf("Approved %d redaction(s)", n),
		ActorID:      actor.idPtr(),
		ActorName:    actor.Name,
		NewValue:     string(models.RedactionApproved),
		Metadata:     models.JSONB{"analysisId": analysisID.String(), "requested": len(ids)},
	})

	return &ApplyResult{
		Success:       true,
		ApprovedCount: n,
		Message:       redactionsApprovedNotice,
	}, nil
}

// GetAnalysisResults returns the stored analysis for a document.
func (d *DocumentAnalyzer) GetAnalysisResults(ctx context.Context, documentID uuid.UUID) (*models.AnalysisResults, error) {
	res, err := d.store.GetAnalysisResults(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading analysis results: %w", err)
	}
	if res == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	return res, nil
}

// IsClientError reports whether err stems from caller input rather than
// a failure of the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyText) || errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrInvalidStatus)
}
