package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govworks/foia/internal/config"
	"github.com/govworks/foia/internal/entitygraph"
	"github.com/govworks/foia/internal/foia"
	"github.com/govworks/foia/internal/models"
	"github.com/govworks/foia/internal/queue"
	"github.com/govworks/foia/internal/scheduler"
	"github.com/govworks/foia/internal/similarity"
)

func sampleRequest() models.Request {
	return models.Request{
		TrackingNumber: "FOIA-2026-00042",
		Status:         models.RequestStatusSubmitted,
		Priority:       models.PriorityNormal,
		RequestType:    models.RequestTypeGeneral,
		RequesterName:  "Jordan Reyes",
		Subject:        "Police overtime records",
		Description:    "All overtime reports for the Police Department from 2024.",
		DateSubmitted:  time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		DateDue:        time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateRequest(t *testing.T) {
	t.Run("public submission", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/api/v1/foia/requests", map[string]interface{}{
			"requesterName": "Jordan <em>Reyes</em>",
			"requestType":   "general",
			"subject":       "<b>Budget</b> & audit memos",
			"description":   "Memos about the 2025 budget audit.",
		}, "")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var data map[string]interface{}
		decodeEnvelope(t, rec, &data)
		assert.Equal(t, "FOIA-2026-00001", data["trackingNumber"])
		assert.NotEmpty(t, data["analysisId"])

		require.Len(t, env.requests.created, 1)
		assert.Equal(t, "Budget & audit memos", env.requests.created[0].Subject)
		assert.Equal(t, "Jordan Reyes", env.requests.created[0].RequesterName)
		assert.Equal(t, foia.Actor{}, env.requests.actors[0])

		require.Len(t, env.architect.opts, 1)
		require.NotNil(t, env.architect.opts[0].RequestID)
		created := data["request"].(map[string]interface{})
		assert.Equal(t, created["id"], env.architect.opts[0].RequestID.String())
		assert.Contains(t, env.architect.texts[0], "Memos about the 2025 budget audit.")
	})

	t.Run("signed-in staff are recorded as actor", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/v1/foia/requests", map[string]interface{}{
			"requesterName": "Walk-in", "requestType": "general", "subject": "Permits", "description": "Permit files",
		}, env.staffToken)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, env.staffID, env.requests.actors[0].ID)
		assert.Equal(t, "staff", env.requests.actors[0].Name)
	})

	t.Run("analysis failure does not fail the submission", func(t *testing.T) {
		env := newTestEnv(t)
		env.architect.err = errors.New("graph unavailable")
		rec := env.do(t, http.MethodPost, "/api/v1/foia/requests", map[string]interface{}{
			"requesterName": "A", "requestType": "general", "subject": "Permits", "description": "Permit files",
		}, "")
		require.Equal(t, http.StatusCreated, rec.Code)
		var data map[string]interface{}
		decodeEnvelope(t, rec, &data)
		assert.NotContains(t, data, "analysisId")
	})

	tests := []struct {
		name       string
		body       string
		failWith   error
		wantStatus int
		wantCode   string
	}{
		{"invalid json", `{"subject":`, nil, http.StatusBadRequest, "invalid_json"},
		{"markup only subject", `{"requesterName":"A","requestType":"general","subject":"<p></p>","description":"d"}`, nil, http.StatusBadRequest, "validation_error"},
		{"store failure", `{"requesterName":"A","requestType":"general","subject":"s","description":"d"}`, errors.New("db down"), http.StatusInternalServerError, "db_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.requests.failWith = tt.failWith
			rec := env.do(t, http.MethodPost, "/api/v1/foia/requests", tt.body, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeEnvelope(t, rec, nil)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestGetRequestStatus(t *testing.T) {
	env := newTestEnv(t)
	env.requests.add(sampleRequest())

	rec := env.do(t, http.MethodGet, "/api/v1/foia/requests/FOIA-2026-00042/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.RequestStatusView
	decodeEnvelope(t, rec, &view)
	assert.Equal(t, models.RequestStatusSubmitted, view.Status)
	assert.NotContains(t, rec.Body.String(), "Jordan Reyes")

	rec = env.do(t, http.MethodGet, "/api/v1/foia/requests/FOIA-2026-99999/status", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeRequest(t *testing.T) {
	tests := []struct {
		name        string
		body        interface{}
		err         error
		wantStatus  int
		wantSuccess bool
	}{
		{"blank text", map[string]string{"text": "   "}, nil, http.StatusBadRequest, false},
		{"markup only", map[string]string{"text": "<br/>"}, nil, http.StatusBadRequest, false},
		{"analyzed", map[string]interface{}{"text": "Emails from the Mayor about the stadium", "context": map[string]string{"source": "form"}}, nil, http.StatusOK, true},
		{"failure degrades", map[string]string{"text": "Emails from the Mayor"}, errors.New("boom"), http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.architect.err = tt.err

			rec := env.do(t, http.MethodPost, "/api/v1/foia/ai/analyze-request", tt.body, "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var analysis foia.RequestAnalysis
			resp := decodeEnvelope(t, rec, &analysis)
			assert.Equal(t, tt.wantSuccess, resp.Success)

			if tt.err != nil {
				require.NotNil(t, resp.Error)
				assert.Equal(t, "analysis_failed", resp.Error.Code)
				assert.NotNil(t, analysis.Entities)
				assert.Empty(t, analysis.Entities)
				assert.Nil(t, analysis.FeeEstimate)
			}
			if tt.wantSuccess {
				assert.NotEqual(t, uuid.Nil, analysis.AnalysisID)
				assert.Equal(t, "form", env.architect.opts[0].Context["source"])
				assert.Empty(t, analysis.AnalyzedText)
			}
		})
	}
}

func TestAnalyzeRequest_ReportsAnalyzedText(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/foia/ai/analyze-request", map[string]string{
		"text": "  <b>Emails</b> from the Mayor ",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var analysis foia.RequestAnalysis
	decodeEnvelope(t, rec, &analysis)
	assert.Equal(t, "Emails from the Mayor", analysis.AnalyzedText)
	assert.Equal(t, analysis.AnalyzedText, env.architect.texts[0])
}

func TestSuggest(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"text":`, 0},
		{"short text", `{"text":"emails"}`, 0},
		{"enough text", `{"text":"all emails from the mayor","currentField":"description"}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/foia/ai/suggest", tt.body, "")
			require.Equal(t, http.StatusOK, rec.Code)
			var data struct {
				Suggestions []string `json:"suggestions"`
			}
			decodeEnvelope(t, rec, &data)
			assert.NotNil(t, data.Suggestions)
			assert.Len(t, data.Suggestions, tt.want)
		})
	}
}

func TestFindExisting(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/foia/ai/find-existing", map[string]string{"text": ""}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/foia/ai/find-existing", map[string]string{"text": "stadium contracts"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		SimilarRequests []similarity.Match `json:"similarRequests"`
		Count           int                `json:"count"`
	}
	decodeEnvelope(t, rec, &data)
	assert.NotNil(t, data.SimilarRequests)
	assert.Equal(t, 0, data.Count)

	env.architect.matches = []similarity.Match{{ID: uuid.NewString(), TrackingNumber: "FOIA-2025-00007", Similarity: 0.8, HasPublicRecords: true}}
	rec = env.do(t, http.MethodPost, "/api/v1/foia/ai/find-existing", map[string]string{"text": "stadium contracts"}, "")
	decodeEnvelope(t, rec, &data)
	assert.Equal(t, 1, data.Count)
	assert.Equal(t, "FOIA-2025-00007", data.SimilarRequests[0].TrackingNumber)
}

func TestRequestFilter(t *testing.T) {
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		query   string
		want    models.RequestFilter
		wantErr bool
	}{
		{"empty", "", models.RequestFilter{}, false},
		{"offset paging", "limit=25&offset=50", models.RequestFilter{Limit: 25, Offset: 50}, false},
		{"page paging", "page=3&limit=20", models.RequestFilter{Limit: 20, Offset: 40}, false},
		{"page without limit ignored", "page=3", models.RequestFilter{}, false},
		{"filters", "q=+police+&status=assigned&priority=high&assignedTo=casey&sortBy=date_due&sortOrder=asc",
			models.RequestFilter{Query: "police", Status: models.RequestStatusAssigned, Priority: models.PriorityHigh, AssignedTo: "casey", SortBy: "date_due", SortOrder: "asc"}, false},
		{"date bound", "dateSubmittedAfter=2026-01-01", models.RequestFilter{DateSubmittedAfter: &after}, false},
		{"rfc3339 bound", "dateSubmittedAfter=2026-01-01T00:00:00Z", models.RequestFilter{DateSubmittedAfter: &after}, false},
		{"bad date", "dateDueBefore=last-week", models.RequestFilter{}, true},
		{"unknown status", "status=lost", models.RequestFilter{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			got, err := requestFilter(q)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListRequests(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.requests.add(sampleRequest())
	}

	rec := env.do(t, http.MethodGet, "/api/v1/foia/admin/requests?limit=2", nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var reqs []models.Request
	resp := decodeEnvelope(t, rec, &reqs)
	assert.Len(t, reqs, 2)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 3, resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.Limit)

	rec = env.do(t, http.MethodGet, "/api/v1/foia/admin/requests?status=lost", nil, env.staffToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRequest(t *testing.T) {
	env := newTestEnv(t)
	req := env.requests.add(sampleRequest())

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"found", req.ID.String(), http.StatusOK},
		{"missing", uuid.NewString(), http.StatusNotFound},
		{"malformed", "42", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/foia/admin/requests/"+tt.id, nil, env.staffToken)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestUpdateRequestStatus(t *testing.T) {
	env := newTestEnv(t)
	req := env.requests.add(sampleRequest())
	path := "/api/v1/foia/admin/requests/" + req.ID.String() + "/status"

	rec := env.do(t, http.MethodPut, path, map[string]string{"status": "misplaced"}, env.staffToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/foia/admin/requests/"+uuid.NewString()+"/status", map[string]string{"status": "acknowledged"}, env.staffToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, path, map[string]string{"status": "acknowledged", "notes": "<i>Called requester</i>"}, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Request
	decodeEnvelope(t, rec, &updated)
	assert.Equal(t, models.RequestStatusAcknowledged, updated.Status)
	assert.Equal(t, "Called requester", env.requests.notes)
	assert.Equal(t, env.staffID, env.requests.actors[len(env.requests.actors)-1].ID)
}

func TestAssignRequest(t *testing.T) {
	env := newTestEnv(t)
	req := env.requests.add(sampleRequest())
	path := "/api/v1/foia/admin/requests/" + req.ID.String() + "/assign"

	rec := env.do(t, http.MethodPut, path, map[string]string{"assignedTo": " "}, env.adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, path, map[string]string{"assignedTo": "casey"}, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Request
	decodeEnvelope(t, rec, &updated)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, "casey", *updated.AssignedTo)
	assert.Equal(t, models.RequestStatusAssigned, updated.Status)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.requests.add(sampleRequest())

	rec := env.do(t, http.MethodGet, "/api/v1/foia/admin/dashboard", nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.DashboardStats
	decodeEnvelope(t, rec, &stats)
	assert.Equal(t, 1, stats.TotalRequests)
}

func TestExportRequestsCSV(t *testing.T) {
	env := newTestEnv(t)
	env.requests.add(sampleRequest())
	env.requests.add(sampleRequest())

	rec := env.do(t, http.MethodGet, "/api/v1/foia/admin/requests/export.csv?status=submitted", nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "foia-requests-")

	records, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, models.RequestStatusSubmitted, env.requests.filters[0].Status)
}

func TestRelatedRequests(t *testing.T) {
	id := uuid.New()
	path := "/api/v1/foia/admin/requests/" + id.String() + "/related?limit=1"

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, path, nil, env.staffToken)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	graph := &fakeGraph{related: []entitygraph.RelatedRequest{
		{RequestID: uuid.New(), SharedEntities: 3, Entities: []string{"department:police", "person:jane doe", "date:2024"}},
		{RequestID: uuid.New(), SharedEntities: 1, Entities: []string{"department:police"}},
	}}
	env = newTestEnv(t, func(d *Deps, _ *config.Config) { d.Graph = graph })
	rec = env.do(t, http.MethodGet, path, nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var related []entitygraph.RelatedRequest
	resp := decodeEnvelope(t, rec, &related)
	require.Len(t, related, 1)
	assert.Equal(t, 3, related[0].SharedEntities)
	assert.Equal(t, 1, resp.Meta.Total)
}

func TestRequestActivity(t *testing.T) {
	id := uuid.New()
	other := uuid.New()
	activity := &fakeActivity{entries: []models.ActivityLog{
		{ID: uuid.New(), RequestID: &id, ActivityType: models.ActivityStatusChange, Action: "Status changed"},
		{ID: uuid.New(), RequestID: &other, Action: "Created"},
	}}
	env := newTestEnv(t, func(d *Deps, _ *config.Config) { d.Activity = activity })

	rec := env.do(t, http.MethodGet, "/api/v1/foia/admin/requests/"+id.String()+"/activity", nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []models.ActivityLog
	decodeEnvelope(t, rec, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "Status changed", entries[0].Action)

	rec = env.do(t, http.MethodGet, "/api/v1/foia/admin/requests/"+other.String()+"/activity", nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadDocument(t *testing.T) {
	env := newTestEnv(t)
	req := env.requests.add(sampleRequest())
	path := "/api/v1/foia/admin/requests/" + req.ID.String() + "/documents"

	rec := env.do(t, http.MethodPost, path, map[string]interface{}{
		"filename":         "9f3a-overtime.pdf",
		"originalFilename": "<i>overtime</i>.pdf",
		"fileType":         "application/pdf",
		"fileSize":         4096,
	}, env.staffToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc models.Document
	decodeEnvelope(t, rec, &doc)
	assert.Equal(t, req.ID, doc.RequestID)
	require.Len(t, env.requests.uploads, 1)
	assert.Equal(t, "overtime.pdf", env.requests.uploads[0].OriginalFilename)
	assert.Equal(t, env.staffID, env.requests.actors[0].ID)

	tests := []struct {
		name       string
		path       string
		body       interface{}
		token      string
		wantStatus int
	}{
		{"missing filename", path, map[string]interface{}{"fileSize": 1}, env.staffToken, http.StatusBadRequest},
		{"unknown request", "/api/v1/foia/admin/requests/" + uuid.NewString() + "/documents", map[string]string{"filename": "a.pdf"}, env.staffToken, http.StatusNotFound},
		{"bad request id", "/api/v1/foia/admin/requests/nope/documents", map[string]string{"filename": "a.pdf"}, env.staffToken, http.StatusBadRequest},
		{"viewer forbidden", path, map[string]string{"filename": "a.pdf"}, env.viewerToken, http.StatusForbidden},
		{"anonymous", path, map[string]string{"filename": "a.pdf"}, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body, tt.token)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestListDocuments(t *testing.T) {
	env := newTestEnv(t)
	req := env.requests.add(sampleRequest())
	for _, name := range []string{"older.pdf", "newer.pdf"} {
		_, err := env.requests.UploadDocument(context.Background(), req.ID, foia.NewDocument{Filename: name}, foia.Actor{})
		require.NoError(t, err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/foia/admin/documents", nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var docs []models.DocumentListItem
	resp := decodeEnvelope(t, rec, &docs)
	require.Len(t, docs, 2)
	assert.Equal(t, "newer.pdf", docs[0].Filename)
	assert.Equal(t, "FOIA-2026-00042", docs[0].Request.TrackingNumber)
	assert.Nil(t, docs[0].Analysis)
	assert.Equal(t, 2, resp.Meta.Total)

	env.requests.failWith = errors.New("db down")
	rec = env.do(t, http.MethodGet, "/api/v1/foia/admin/documents", nil, env.staffToken)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListTemplates(t *testing.T) {
	env := newTestEnv(t)
	env.requests.templates = []models.Template{
		{ID: uuid.New(), Name: "Standard Acknowledgment", TemplateType: models.TemplateAcknowledgment, IsActive: true},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/foia/admin/templates", nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var templates []models.Template
	decodeEnvelope(t, rec, &templates)
	require.Len(t, templates, 1)
	assert.Equal(t, models.TemplateAcknowledgment, templates[0].TemplateType)

	rec = env.do(t, http.MethodGet, "/api/v1/foia/admin/templates", nil, env.viewerToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAnalyzeDocument(t *testing.T) {
	env := newTestEnv(t)
	docID := uuid.New()

	tests := []struct {
		name       string
		id         string
		body       interface{}
		wantStatus int
	}{
		{"malformed id", "doc-1", map[string]string{"documentText": "x"}, http.StatusBadRequest},
		{"missing text", docID.String(), map[string]int{"pageCount": 2}, http.StatusBadRequest},
		{"analysis error", docID.String(), map[string]string{"documentText": "corrupt scan"}, http.StatusInternalServerError},
		{"analyzed", docID.String(), map[string]interface{}{"documentText": "Dear Sir, SSN 123-45-6789", "pageCount": 2}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/foia/admin/documents/"+tt.id+"/analyze", tt.body, env.staffToken)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestAnalyzeDocumentAsync(t *testing.T) {
	docID := uuid.New()
	path := "/api/v1/foia/admin/documents/" + docID.String() + "/analyze-async"

	env := newTestEnv(t, func(d *Deps, _ *config.Config) { d.Queue = nil })
	rec := env.do(t, http.MethodPost, path, map[string]string{"source": "s3://records/memo.txt"}, env.staffToken)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env = newTestEnv(t)
	rec = env.do(t, http.MethodPost, path, map[string]string{}, env.staffToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, path, map[string]interface{}{"source": " s3://records/memo.txt ", "pageCount": 4, "priority": 2}, env.staffToken)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var data map[string]interface{}
	decodeEnvelope(t, rec, &data)
	assert.Equal(t, "pending", data["status"])

	require.Len(t, env.queue.jobs, 1)
	job := env.queue.jobs[0]
	assert.Equal(t, docID, job.DocumentID)
	assert.Equal(t, "s3://records/memo.txt", job.Source)
	assert.Equal(t, 4, job.PageCount)
	assert.Equal(t, env.staffID, job.RequestedBy)
	assert.Equal(t, job.ID.String(), data["jobId"])
}

func TestJobProgress(t *testing.T) {
	env := newTestEnv(t)
	jobID := uuid.New()
	env.queue.progress[jobID] = &queue.JobProgress{JobID: jobID, Status: queue.JobRunning, Errors: []string{}}

	rec := env.do(t, http.MethodGet, "/api/v1/foia/admin/jobs/"+jobID.String(), nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress queue.JobProgress
	decodeEnvelope(t, rec, &progress)
	assert.Equal(t, queue.JobRunning, progress.Status)

	rec = env.do(t, http.MethodGet, "/api/v1/foia/admin/jobs/"+uuid.NewString(), nil, env.staffToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueStats(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/foia/admin/queue/stats", nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Queues        map[string]int64 `json:"queues"`
		ActiveWorkers []string         `json:"activeWorkers"`
	}
	decodeEnvelope(t, rec, &data)
	assert.Equal(t, int64(2), data.Queues["pending"])
	assert.Len(t, data.ActiveWorkers, 1)
}

func storedAnalysis(env *testEnv) (uuid.UUID, *models.AnalysisResults) {
	docID := uuid.New()
	docType := "email"
	res := &models.AnalysisResults{
		AnalysisID:       uuid.New(),
		DocumentID:       docID,
		DocumentType:     &docType,
		ProcessingStatus: models.ProcessingCompleted,
		DetectedPII:      []models.PIIWithSuggestion{},
		Exemptions:       []models.ExemptionClassification{},
	}
	env.documents.results[docID] = res
	return docID, res
}

func TestGetDocumentAnalysisAndReport(t *testing.T) {
	env := newTestEnv(t)
	docID, res := storedAnalysis(env)

	rec := env.do(t, http.MethodGet, "/api/v1/foia/admin/documents/"+docID.String()+"/analysis", nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.AnalysisResults
	decodeEnvelope(t, rec, &got)
	assert.Equal(t, res.AnalysisID, got.AnalysisID)

	rec = env.do(t, http.MethodGet, "/api/v1/foia/admin/documents/"+uuid.NewString()+"/analysis", nil, env.staffToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/foia/admin/documents/"+docID.String()+"/report.pdf", nil, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestApplyRedactions(t *testing.T) {
	env := newTestEnv(t)
	docID, res := storedAnalysis(env)
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	rec := env.do(t, http.MethodPost, "/api/v1/foia/admin/documents/"+docID.String()+"/apply-redactions", map[string]interface{}{"approvedRedactionIds": []uuid.UUID{}}, env.staffToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/foia/admin/documents/"+uuid.NewString()+"/apply-redactions", map[string]interface{}{"approvedRedactionIds": ids}, env.staffToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/foia/admin/documents/"+docID.String()+"/apply-redactions", map[string]interface{}{"approvedRedactionIds": ids}, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var applied foia.ApplyResult
	decodeEnvelope(t, rec, &applied)
	assert.Equal(t, 2, applied.ApprovedCount)
	assert.Equal(t, res.AnalysisID, env.documents.applied)
	assert.Equal(t, ids, env.documents.ids)
}

func TestBatchAnalyze(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/foia/admin/documents/batch-analyze"

	rec := env.do(t, http.MethodPost, path, map[string]interface{}{"documents": []interface{}{}}, env.staffToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	tooMany := make([]batchDocument, env.cfg.Analysis.MaxBatchSize+1)
	rec = env.do(t, http.MethodPost, path, batchAnalyzeRequest{Documents: tooMany}, env.staffToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	docs := []batchDocument{
		{ID: uuid.New(), Text: "Memo one"},
		{ID: uuid.New(), Text: "corrupt"},
		{ID: uuid.New(), Text: " "},
		{ID: uuid.New(), Text: "Memo four", PageCount: 3},
		{ID: uuid.New(), Text: "Memo five"},
	}
	rec = env.do(t, http.MethodPost, path, batchAnalyzeRequest{Documents: docs}, env.staffToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Results   []batchItemResult `json:"results"`
		Succeeded int               `json:"succeeded"`
		Failed    int               `json:"failed"`
	}
	decodeEnvelope(t, rec, &data)
	require.Len(t, data.Results, 5)
	assert.Equal(t, 3, data.Succeeded)
	assert.Equal(t, 2, data.Failed)
	for i, r := range data.Results {
		assert.Equal(t, docs[i].ID, r.DocumentID)
	}
	assert.Contains(t, data.Results[1].Error, "unreadable")
	assert.Equal(t, foia.ErrEmptyText.Error(), data.Results[2].Error)
	assert.LessOrEqual(t, env.documents.peak, int32(env.cfg.Analysis.BatchConcurrency))
}

func TestSchedulerEndpoints(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/foia/admin/scheduler/jobs", nil, env.adminToken)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	sched := scheduler.NewScheduler(nil, nil)
	require.NoError(t, sched.Register(scheduler.Job{
		ID:       scheduler.JobOverdueSweep,
		Schedule: "0 7 * * 1-5",
		Handler:  func(context.Context) (string, error) { return "0 overdue", nil },
	}))
	env = newTestEnv(t, func(d *Deps, _ *config.Config) { d.Scheduler = sched })

	rec = env.do(t, http.MethodGet, "/api/v1/foia/admin/scheduler/jobs", nil, env.staffToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/foia/admin/scheduler/jobs", nil, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []scheduler.JobInfo
	decodeEnvelope(t, rec, &jobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, scheduler.JobOverdueSweep, jobs[0].ID)

	rec = env.do(t, http.MethodPost, "/api/v1/foia/admin/scheduler/jobs/nope/run", nil, env.adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/foia/admin/scheduler/jobs/"+scheduler.JobOverdueSweep+"/executions", nil, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var execs []json.RawMessage
	decodeEnvelope(t, rec, &execs)
	assert.Empty(t, execs)
}
