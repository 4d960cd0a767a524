package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/govworks/foia/internal/foia"
	"github.com/govworks/foia/internal/queue"
	"github.com/govworks/foia/internal/reports"
)

const workerHeartbeatTimeout = time.Minute

func (s *Server) respondDocumentError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, foia.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "No analysis found for document")
	case foia.IsClientError(err):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		s.logger.Error(op, "error", err)
		respondError(w, http.StatusInternalServerError, "analysis_error", "Failed to "+op)
	}
}

type analyzeDocumentRequest struct {
	DocumentText string `json:"documentText"`
	PageCount    int    `json:"pageCount"`
}

func (s *Server) analyzeDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "documentID")
	if !ok {
		return
	}

	var req analyzeDocumentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DocumentText) == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "documentText is required")
		return
	}

	res, err := s.documents.AnalyzeDocument(r.Context(), id, req.DocumentText, foia.DocumentOptions{PageCount: req.PageCount})
	if err != nil {
		s.respondDocumentError(w, err, "analyze document")
		return
	}

	respondJSON(w, http.StatusOK, res)
}

type analyzeAsyncRequest struct {
	Source    string `json:"source"`
	Text      string `json:"text"`
	PageCount int    `json:"pageCount"`
	Priority  int    `json:"priority"`
}

func (s *Server) analyzeDocumentAsync(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		respondError(w, http.StatusServiceUnavailable, "queue_unavailable", "Document queue is not configured")
		return
	}

	id, ok := uuidParam(w, r, "documentID")
	if !ok {
		return
	}

	var req analyzeAsyncRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" && strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "source or text is required")
		return
	}

	job := &queue.Job{
		DocumentID:  id,
		Source:      req.Source,
		Text:        req.Text,
		PageCount:   req.PageCount,
		Priority:    req.Priority,
		RequestedBy: actorFromRequest(r).ID,
	}
	if err := s.queue.EnqueueDocumentJob(r.Context(), job); err != nil {
		s.logger.Error("enqueueing document job", "document_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "queue_error", "Failed to queue document")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId":      job.ID,
		"documentId": id,
		"status":     queue.JobPending,
	})
}

func (s *Server) getJobProgress(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		respondError(w, http.StatusServiceUnavailable, "queue_unavailable", "Document queue is not configured")
		return
	}

	id, ok := uuidParam(w, r, "jobID")
	if !ok {
		return
	}

	progress, err := s.queue.GetProgress(r.Context(), id)
	if err != nil {
		s.logger.Error("loading job progress", "job_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "queue_error", "Failed to load job progress")
		return
	}
	if progress == nil {
		respondError(w, http.StatusNotFound, "not_found", "Job not found")
		return
	}

	respondJSON(w, http.StatusOK, progress)
}

func (s *Server) getQueueStats(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		respondError(w, http.StatusServiceUnavailable, "queue_unavailable", "Document queue is not configured")
		return
	}

	stats, err := s.queue.GetQueueStats(r.Context())
	if err != nil {
		s.logger.Error("loading queue stats", "error", err)
		respondError(w, http.StatusInternalServerError, "queue_error", "Failed to load queue stats")
		return
	}
	workers, err := s.queue.GetActiveWorkers(r.Context(), workerHeartbeatTimeout)
	if err != nil {
		s.logger.Error("listing active workers", "error", err)
		respondError(w, http.StatusInternalServerError, "queue_error", "Failed to list workers")
		return
	}
	if s.metrics != nil {
		s.metrics.SetQueueStats(stats, len(workers))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"queues":        stats,
		"activeWorkers": workers,
	})
}

func (s *Server) getDocumentAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "documentID")
	if !ok {
		return
	}

	res, err := s.documents.GetAnalysisResults(r.Context(), id)
	if err != nil {
		s.respondDocumentError(w, err, "load analysis")
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func (s *Server) getDocumentReport(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "documentID")
	if !ok {
		return
	}

	res, err := s.documents.GetAnalysisResults(r.Context(), id)
	if err != nil {
		s.respondDocumentError(w, err, "load analysis")
		return
	}

	pdf, err := reports.AnalysisPDF(res, time.Now())
	if err != nil {
		s.logger.Error("rendering analysis report", "document_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "report_error", "Failed to render report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "analysis-"+id.String()+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

type applyRedactionsRequest struct {
	ApprovedRedactionIDs []uuid.UUID `json:"approvedRedactionIds"`
}

func (s *Server) applyRedactions(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "documentID")
	if !ok {
		return
	}

	var req applyRedactionsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.ApprovedRedactionIDs) == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "approvedRedactionIds is required")
		return
	}

	analysis, err := s.documents.GetAnalysisResults(r.Context(), id)
	if err != nil {
		s.respondDocumentError(w, err, "load analysis")
		return
	}

	res, err := s.documents.ApplyRedactions(r.Context(), analysis.AnalysisID, req.ApprovedRedactionIDs, actorFromRequest(r))
	if err != nil {
		s.respondDocumentError(w, err, "apply redactions")
		return
	}

	respondJSON(w, http.StatusOK, res)
}

type batchDocument struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	PageCount int       `json:"pageCount"`
}

type batchAnalyzeRequest struct {
	Documents []batchDocument `json:"documents"`
}

type batchItemResult struct {
	DocumentID uuid.UUID            `json:"documentId"`
	Result     *foia.DocumentResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// batchAnalyzeDocuments analyzes documents concurrently, bounded by
// analysis.batch_concurrency. One document failing does not stop the
// others; each result carries its own error.
func (s *Server) batchAnalyzeDocuments(w http.ResponseWriter, r *http.Request) {
	var req batchAnalyzeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "documents is required")
		return
	}
	if limit := s.cfg.Analysis.MaxBatchSize; limit > 0 && len(req.Documents) > limit {
		respondError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("at most %d documents per batch", limit))
		return
	}

	results := s.runBatch(r.Context(), req.Documents)

	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results":   results,
		"succeeded": len(results) - failed,
		"failed":    failed,
	})
}

func (s *Server) runBatch(ctx context.Context, docs []batchDocument) []batchItemResult {
	results := make([]batchItemResult, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.cfg.Analysis.BatchConcurrency))

	for i, doc := range docs {
		results[i].DocumentID = doc.ID
		if doc.ID == uuid.Nil {
			results[i].Error = "id is required"
			continue
		}
		if strings.TrimSpace(doc.Text) == "" {
			results[i].Error = foia.ErrEmptyText.Error()
			continue
		}

		i, doc := i, doc
		g.Go(func() error {
			res, err := s.documents.AnalyzeDocument(gctx, doc.ID, doc.Text, foia.DocumentOptions{PageCount: doc.PageCount})
			if err != nil {
				s.logger.Warn("batch document failed", "document_id", doc.ID, "error", err)
				results[i].Error = err.Error()
				return nil
			}
			results[i].Result = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}
