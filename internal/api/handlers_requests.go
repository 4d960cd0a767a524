package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/govworks/foia/internal/foia"
	"github.com/govworks/foia/internal/models"
	"github.com/govworks/foia/internal/reports"
)

const (
	defaultRelatedLimit  = 10
	defaultActivityLimit = 50
)

func queryInt(q url.Values, key string, def int) int {
	if v := q.Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(q url.Values, key string) (*time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%s: expected a date or RFC 3339 timestamp", key)
}

// requestFilter builds a search filter from the query string. Paging is
// either limit/offset or page/limit with 1-based pages.
func requestFilter(q url.Values) (models.RequestFilter, error) {
	f := models.RequestFilter{
		Query:          strings.TrimSpace(q.Get("q")),
		Status:         models.RequestStatus(q.Get("status")),
		Priority:       models.Priority(q.Get("priority")),
		RequestType:    models.RequestType(q.Get("requestType")),
		RequesterEmail: q.Get("requesterEmail"),
		AssignedTo:     q.Get("assignedTo"),
		SortBy:         q.Get("sortBy"),
		SortOrder:      q.Get("sortOrder"),
		Limit:          queryInt(q, "limit", 0),
		Offset:         queryInt(q, "offset", 0),
	}
	if page := queryInt(q, "page", 0); page > 0 && f.Limit > 0 {
		f.Offset = (page - 1) * f.Limit
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("unknown status %q", f.Status)
	}

	var err error
	bounds := []struct {
		key string
		dst **time.Time
	}{
		{"dateSubmittedAfter", &f.DateSubmittedAfter},
		{"dateSubmittedBefore", &f.DateSubmittedBefore},
		{"dateDueAfter", &f.DateDueAfter},
		{"dateDueBefore", &f.DateDueBefore},
	}
	for _, b := range bounds {
		if *b.dst, err = queryTime(q, b.key); err != nil {
			return f, err
		}
	}
	return f, nil
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	f, err := requestFilter(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	res, err := s.requests.Search(r.Context(), f)
	if err != nil {
		s.logger.Error("searching requests", "error", err)
		respondError(w, http.StatusInternalServerError, "db_error", "Failed to search requests")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, res.Requests, &apiMeta{
		Total:  res.Total,
		Limit:  res.Limit,
		Offset: res.Offset,
	})
}

func (s *Server) exportRequests(w http.ResponseWriter, r *http.Request) {
	f, err := requestFilter(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	filename := fmt.Sprintf("foia-requests-%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	n, err := reports.ExportRequestsCSV(r.Context(), w, s.requests, f)
	if err != nil {
		// Headers are already out; all that is left is to log.
		s.logger.Error("exporting requests", "rows", n, "error", err)
		return
	}
	s.logger.Info("exported requests", "rows", n)
}

func (s *Server) respondRequestError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, foia.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Request not found")
	case foia.IsClientError(err):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		s.logger.Error(op, "error", err)
		respondError(w, http.StatusInternalServerError, "db_error", "Failed to "+op)
	}
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "requestID")
	if !ok {
		return
	}

	req, err := s.requests.Get(r.Context(), id)
	if err != nil {
		s.respondRequestError(w, err, "load request")
		return
	}

	respondJSON(w, http.StatusOK, req)
}

type updateStatusRequest struct {
	Status models.RequestStatus `json:"status"`
	Notes  string               `json:"notes"`
}

func (s *Server) updateRequestStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "requestID")
	if !ok {
		return
	}

	var req updateStatusRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	updated, err := s.requests.UpdateStatus(r.Context(), id, req.Status, actorFromRequest(r), sanitizeText(req.Notes))
	if err != nil {
		s.respondRequestError(w, err, "update status")
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

type assignRequest struct {
	AssignedTo string `json:"assignedTo"`
}

func (s *Server) assignRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "requestID")
	if !ok {
		return
	}

	var req assignRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	updated, err := s.requests.Assign(r.Context(), id, req.AssignedTo, actorFromRequest(r))
	if err != nil {
		s.respondRequestError(w, err, "assign request")
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.requests.Dashboard(r.Context())
	if err != nil {
		s.logger.Error("loading dashboard", "error", err)
		respondError(w, http.StatusInternalServerError, "db_error", "Failed to load dashboard")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) getRelatedRequests(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		respondError(w, http.StatusServiceUnavailable, "graph_unavailable", "Entity graph is not configured")
		return
	}

	id, ok := uuidParam(w, r, "requestID")
	if !ok {
		return
	}

	related, err := s.graph.RelatedRequests(r.Context(), id, queryInt(r.URL.Query(), "limit", defaultRelatedLimit))
	if err != nil {
		s.logger.Error("querying related requests", "request_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "graph_error", "Failed to query related requests")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, related, &apiMeta{Total: len(related)})
}

func (s *Server) getRequestActivity(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		respondError(w, http.StatusServiceUnavailable, "activity_unavailable", "Activity log is not configured")
		return
	}

	id, ok := uuidParam(w, r, "requestID")
	if !ok {
		return
	}

	entries, err := s.activity.ListActivity(r.Context(), id, queryInt(r.URL.Query(), "limit", defaultActivityLimit))
	if err != nil {
		s.logger.Error("listing activity", "request_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "db_error", "Failed to list activity")
		return
	}
	if entries == nil {
		entries = []models.ActivityLog{}
	}

	respondJSONWithMeta(w, http.StatusOK, entries, &apiMeta{Total: len(entries)})
}

type uploadDocumentRequest struct {
	Filename         string `json:"filename"`
	OriginalFilename string `json:"originalFilename"`
	FileType         string `json:"fileType"`
	FileSize         int64  `json:"fileSize"`
	FilePath         string `json:"filePath"`
	PageCount        *int   `json:"pageCount"`
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "requestID")
	if !ok {
		return
	}

	var req uploadDocumentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	doc, err := s.requests.UploadDocument(r.Context(), id, foia.NewDocument{
		Filename:         sanitizeText(req.Filename),
		OriginalFilename: sanitizeText(req.OriginalFilename),
		FileType:         sanitizeText(req.FileType),
		FileSize:         req.FileSize,
		FilePath:         req.FilePath,
		PageCount:        req.PageCount,
	}, actorFromRequest(r))
	if err != nil {
		s.respondRequestError(w, err, "upload document")
		return
	}

	respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.requests.ListDocuments(r.Context())
	if err != nil {
		s.logger.Error("listing documents", "error", err)
		respondError(w, http.StatusInternalServerError, "db_error", "Failed to list documents")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, docs, &apiMeta{Total: len(docs)})
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.requests.Templates(r.Context())
	if err != nil {
		s.logger.Error("listing templates", "error", err)
		respondError(w, http.StatusInternalServerError, "db_error", "Failed to list templates")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, templates, &apiMeta{Total: len(templates)})
}
