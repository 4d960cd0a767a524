// Package foia wires the analysis packages into the request and document
// workflows and owns the request lifecycle.
package foia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/extractor"
	"github.com/govworks/foia/internal/models"
	"github.com/govworks/foia/internal/pii"
	"github.com/govworks/foia/internal/routing"
	"github.com/govworks/foia/internal/similarity"
)

var (
	ErrEmptyText      = errors.New("text is required")
	ErrNotFound       = errors.New("not found")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrInvalidRequest = errors.New("invalid request")
)

// AnalysisStore persists request analyses.
type AnalysisStore interface {
	CreateRequestAnalysis(ctx context.Context, a *models.RequestAnalysis) error
	CreateExtractedEntities(ctx context.Context, entities []models.ExtractedEntity) error
}

// DocumentStore persists document analyses and their child rows.
type DocumentStore interface {
	pii.Sink
	GetDocumentAnalysisByDocumentID(ctx context.Context, documentID uuid.UUID) (*models.DocumentAnalysis, error)
	// CreateDocumentAnalysis inserts a record or, if one already exists for
	// the document, adopts it. a.ID holds the stored row's id afterwards.
	CreateDocumentAnalysis(ctx context.Context, a *models.DocumentAnalysis) error
	UpdateDocumentAnalysis(ctx context.Context, a *models.DocumentAnalysis) error
	SetDocumentProcessingStatus(ctx context.Context, id uuid.UUID, status models.ProcessingStatus) error
	// ResetDocumentAnalysis drops the child rows of earlier runs and marks
	// the analysis processing.
	ResetDocumentAnalysis(ctx context.Context, id uuid.UUID) error
	CreateExemptionClassification(ctx context.Context, e *models.ExemptionClassification) error
	CreateRedactionSuggestion(ctx context.Context, s *models.RedactionSuggestion) error
	// ApproveRedactions marks the given suggestions approved by reviewedBy
	// when they belong to analysisID and returns how many changed.
	ApproveRedactions(ctx context.Context, analysisID uuid.UUID, ids []uuid.UUID, reviewedBy *string) (int, error)
	GetAnalysisResults(ctx context.Context, documentID uuid.UUID) (*models.AnalysisResults, error)
}

// RequestStore persists records requests.
type RequestStore interface {
	similarity.RequestRepository
	CreateRequest(ctx context.Context, r *models.Request) error
	// LatestTrackingNumber returns the highest tracking number with the
	// given prefix, or "" when there is none.
	LatestTrackingNumber(ctx context.Context, prefix string) (string, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error)
	GetRequestByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Request, error)
	SearchRequests(ctx context.Context, f models.RequestFilter) ([]models.Request, int, error)
	UpdateRequest(ctx context.Context, r *models.Request) error
	RequestStats(ctx context.Context, now time.Time) (*models.DashboardStats, error)
	CreateDocument(ctx context.Context, d *models.Document) error
	ListDocuments(ctx context.Context, limit int) ([]models.DocumentListItem, error)
	ListActiveTemplates(ctx context.Context) ([]models.Template, error)
}

// ActivitySink records audit-trail entries.
type ActivitySink interface {
	LogActivity(ctx context.Context, entry *models.ActivityLog) error
}

// Publisher receives analysis-completed events.
type Publisher interface {
	Publish(ctx context.Context, event models.AnalysisEvent) error
}

// GraphSync mirrors a request analysis into the entity graph.
type GraphSync interface {
	SyncRequestAnalysis(ctx context.Context, analysisID uuid.UUID, requestID *uuid.UUID, entities []extractor.Span, departments []routing.Candidate) error
}

// Recorder observes analysis outcomes for metrics.
type Recorder interface {
	ObserveRequestAnalysis(elapsed time.Duration, entities int, err error)
	ObserveDocumentAnalysis(elapsed time.Duration, detections []pii.Detection, err error)
}

type hooks struct {
	logger     *slog.Logger
	activity   ActivitySink
	publishers []Publisher
	graph      GraphSync
	recorder   Recorder
	now        func() time.Time
}

func defaultHooks() hooks {
	return hooks{logger: slog.Default(), now: time.Now}
}

// Option configures the optional collaborators of a service.
type Option func(*hooks)

func WithLogger(logger *slog.Logger) Option {
	return func(h *hooks) {
		h.logger = logger
	}
}

func WithActivitySink(sink ActivitySink) Option {
	return func(h *hooks) {
		h.activity = sink
	}
}

// WithPublisher adds an event consumer. It may be given more than once.
func WithPublisher(p Publisher) Option {
	return func(h *hooks) {
		h.publishers = append(h.publishers, p)
	}
}

func WithGraph(g GraphSync) Option {
	return func(h *hooks) {
		h.graph = g
	}
}

func WithRecorder(r Recorder) Option {
	return func(h *hooks) {
		h.recorder = r
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *hooks) {
		h.now = now
	}
}

// bestEffort runs fn and logs its error instead of returning it. It is used
// for side effects that must never fail the primary operation: the activity
// log, similarity search, event publication and graph sync.
func bestEffort(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		logger.Warn("best-effort operation failed", "op", op, "error", err)
	}
}

func (h *hooks) logActivity(ctx context.Context, entry *models.ActivityLog) {
	if h.activity == nil {
		return
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = h.now()
	}
	bestEffort(ctx, h.logger, "activity_log", func(ctx context.Context) error {
		return h.activity.LogActivity(ctx, entry)
	})
}

func (h *hooks) publish(ctx context.Context, event models.AnalysisEvent) {
	for _, p := range h.publishers {
		p := p
		bestEffort(ctx, h.logger, "publish_"+event.Type, func(ctx context.Context) error {
			return p.Publish(ctx, event)
		})
	}
}

func toJSONB(v interface{}) (models.JSONB, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling analysis result: %w", err)
	}
	var out models.JSONB
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("converting analysis result: %w", err)
	}
	return out, nil
}
