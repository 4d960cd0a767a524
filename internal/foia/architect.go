package foia

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/estimate"
	"github.com/govworks/foia/internal/extractor"
	"github.com/govworks/foia/internal/models"
	"github.com/govworks/foia/internal/routing"
	"github.com/govworks/foia/internal/scope"
	"github.com/govworks/foia/internal/similarity"
)

const (
	AnalysisTypeComprehensive = "comprehensive"
	ModelVersion              = "v1.0"

	minSuggestionTextLen = 10
)

// RequestOptions carries optional context for a request analysis.
type RequestOptions struct {
	RequestID *uuid.UUID
	Context   map[string]interface{}
}

// RequestAnalysis is the result of analyzing a request's text.
type RequestAnalysis struct {
	AnalysisID uuid.UUID `json:"analysisId"`
	// AnalyzedText is set when the analyzed text differs from what the
	// caller submitted, e.g. after markup was stripped. Entity offsets
	// index into it.
	AnalyzedText           string              `json:"analyzedText,omitempty"`
	Entities               []extractor.Span    `json:"entities"`
	SuggestedDepartments   []routing.Candidate `json:"suggestedDepartments"`
	ScopeAnalysis          scope.Analysis      `json:"scopeAnalysis"`
	SimilarRequests        []similarity.Match  `json:"similarRequests"`
	FeeEstimate            *estimate.Fee       `json:"feeEstimate"`
	ProcessingTimeEstimate *estimate.Timeline  `json:"processingTimeEstimate"`
	Suggestions            []string            `json:"suggestions"`
	Confidence             float64             `json:"confidence"`
	ProcessingTimeMs       int64               `json:"processingTimeMs"`
}

// EmptyRequestAnalysis is the well-formed result reported when analysis
// fails: every list empty, the scope zeroed and both estimates null.
func EmptyRequestAnalysis() *RequestAnalysis {
	return &RequestAnalysis{
		Entities:             []extractor.Span{},
		SuggestedDepartments: []routing.Candidate{},
		ScopeAnalysis:        scope.Analysis{Ambiguities: []scope.Ambiguity{}},
		SimilarRequests:      []similarity.Match{},
		Suggestions:          []string{},
	}
}

// Architect analyzes incoming request text: entities, routing, scope,
// similar past requests, fee and timeline estimates and suggestions.
type Architect struct {
	hooks
	extractor *extractor.Extractor
	router    *routing.Router
	finder    *similarity.Finder
	store     AnalysisStore
}

// NewArchitect creates an Architect. A nil store skips persistence and a
// nil repository disables the similarity search.
func NewArchitect(store AnalysisStore, requests similarity.RequestRepository, opts ...Option) *Architect {
	a := &Architect{
		hooks:     defaultHooks(),
		extractor: extractor.New(),
		router:    routing.New(),
		finder:    similarity.NewFinder(requests),
		store:     store,
	}
	for _, opt := range opts {
		opt(&a.hooks)
	}
	return a
}

// AnalyzeRequest runs the full request flow and persists the analysis.
// Blank text fails with ErrEmptyText before any work is done.
func (a *Architect) AnalyzeRequest(ctx context.Context, text string, opts RequestOptions) (result *RequestAnalysis, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	start := a.now()
	defer func() {
		if a.recorder != nil {
			n := 0
			if result != nil {
				n = len(result.Entities)
			}
			a.recorder.ObserveRequestAnalysis(a.now().Sub(start), n, err)
		}
	}()

	entities := a.extractor.Extract(text)
	if entities == nil {
		entities = []extractor.Span{}
	}
	departments := a.router.Route(text)
	sc := scope.Analyze(text, entities, departments)
	similar := a.FindSimilar(ctx, text)
	est := estimate.Estimate(sc, departments)
	suggestions := Suggestions(sc)

	result = &RequestAnalysis{
		AnalysisID:             uuid.New(),
		Entities:               entities,
		SuggestedDepartments:   departments,
		ScopeAnalysis:          sc,
		SimilarRequests:        similar,
		FeeEstimate:            &est.Fee,
		ProcessingTimeEstimate: &est.Timeline,
		Suggestions:            suggestions,
		Confidence:             OverallConfidence(entities, departments, sc),
	}
	result.ProcessingTimeMs = a.now().Sub(start).Milliseconds()

	if err := a.persist(ctx, result, text, opts); err != nil {
		return nil, err
	}

	if a.graph != nil {
		bestEffort(ctx, a.logger, "graph_sync", func(ctx context.Context) error {
			return a.graph.SyncRequestAnalysis(ctx, result.AnalysisID, opts.RequestID, entities, departments)
		})
	}

	deptIDs := make([]string, 0, len(departments))
	for _, d := range departments {
		deptIDs = append(deptIDs, d.ID)
	}
	a.publish(ctx, models.AnalysisEvent{
		Type:             models.EventRequestAnalyzed,
		AnalysisID:       result.AnalysisID,
		RequestID:        opts.RequestID,
		Departments:      deptIDs,
		Confidence:       result.Confidence,
		ProcessingTimeMs: result.ProcessingTimeMs,
		OccurredAt:       a.now(),
	})

	return result, nil
}

func (a *Architect) persist(ctx context.Context, result *RequestAnalysis, text string, opts RequestOptions) error {
	if a.store == nil {
		return nil
	}

	payload, err := toJSONB(map[string]interface{}{
		"entities":        result.Entities,
		"departments":     result.SuggestedDepartments,
		"scopeAnalysis":   result.ScopeAnalysis,
		"similarRequests": result.SimilarRequests,
		"estimates": map[string]interface{}{
			"fee":      result.FeeEstimate,
			"timeline": result.ProcessingTimeEstimate,
		},
		"suggestions": result.Suggestions,
		"context":     opts.Context,
	})
	if err != nil {
		return err
	}

	record := &models.RequestAnalysis{
		ID:               result.AnalysisID,
		RequestID:        opts.RequestID,
		AnalysisType:     AnalysisTypeComprehensive,
		InputText:        text,
		AnalysisResult:   payload,
		ConfidenceScore:  result.Confidence,
		ModelVersion:     ModelVersion,
		ProcessingTimeMs: result.ProcessingTimeMs,
	}
	if err := a.store.CreateRequestAnalysis(ctx, record); err != nil {
		return fmt.Errorf("saving request analysis: %w", err)
	}

	if len(result.Entities) == 0 {
		return nil
	}
	rows := make([]models.ExtractedEntity, 0, len(result.Entities))
	for _, e := range result.Entities {
		rows = append(rows, models.ExtractedEntity{
			ID:             uuid.New(),
			AnalysisID:     record.ID,
			EntityType:     e.Type,
			EntityValue:    e.Value,
			StartPosition:  e.Start,
			EndPosition:    e.End,
			Confidence:     e.Confidence,
			ContextSnippet: e.Context,
		})
	}
	if err := a.store.CreateExtractedEntities(ctx, rows); err != nil {
		return fmt.Errorf("saving extracted entities: %w", err)
	}
	return nil
}

// FindSimilar returns completed requests resembling text. Lookup failures
// are logged and produce an empty list.
func (a *Architect) FindSimilar(ctx context.Context, text string) []similarity.Match {
	matches := []similarity.Match{}
	bestEffort(ctx, a.logger, "similarity_search", func(ctx context.Context) error {
		found, err := a.finder.FindSimilar(ctx, text)
		if err != nil {
			return err
		}
		matches = found
		return nil
	})
	return matches
}

// GenerateSuggestions returns real-time hints for a request being typed.
// Text shorter than ten characters gets none.
func (a *Architect) GenerateSuggestions(text string) []string {
	if len(strings.TrimSpace(text)) < minSuggestionTextLen {
		return []string{}
	}
	entities := a.extractor.Extract(text)
	departments := a.router.Route(text)
	return Suggestions(scope.Analyze(text, entities, departments))
}

// Suggestions derives requester hints from a scope analysis.
func Suggestions(sc scope.Analysis) []string {
	out := []string{}
	if !sc.HasDateRange {
		out = append(out, "Add a specific date range to narrow your request")
	}
	if len(sc.Ambiguities) > 0 {
		out = append(out, "Review and clarify the ambiguities identified above")
	}
	if sc.ComplexityScore > 0.7 {
		out = append(out, "Consider breaking this into multiple smaller requests for faster processing")
	}
	if sc.WordCount < 30 {
		out = append(out, "Provide more detail about what specific information you're seeking")
	}
	return out
}

// OverallConfidence scores how well the request was understood: more
// entities, a clear top department and fewer ambiguities all raise it.
func OverallConfidence(entities []extractor.Span, departments []routing.Candidate, sc scope.Analysis) float64 {
	c := 0.5
	c += math.Min(float64(len(entities))*0.05, 0.2)
	if len(departments) > 0 && departments[0].RelevanceScore > 0.7 {
		c += 0.2
	}
	c += math.Max(0, 0.3-float64(len(sc.Ambiguities))*0.1)
	return math.Round(math.Min(c, 1)*100) / 100
}
