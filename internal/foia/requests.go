package foia

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/extractor"
	"github.com/govworks/foia/internal/models"
	"github.com/govworks/foia/internal/routing"
	"github.com/govworks/foia/internal/scope"
)

const (
	// ResponseBusinessDays is the statutory response window for a new request.
	ResponseBusinessDays = 10

	trackingPrefix    = "FOIA"
	defaultPageLimit  = 50
	maxPageLimit      = 500
	documentListLimit = 100
)

// Actor identifies who performed an action. The zero value is an
// anonymous public submitter.
type Actor struct {
	ID   string
	Name string
}

func (a Actor) idPtr() *string {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

// NewRequest is the input for CreateRequest.
type NewRequest struct {
	RequesterName         string               `json:"requesterName"`
	RequesterEmail        string               `json:"requesterEmail"`
	RequesterPhone        string               `json:"requesterPhone"`
	RequesterOrganization string               `json:"requesterOrganization"`
	RequesterType         models.RequesterType `json:"requesterType"`
	IsAnonymous           bool                 `json:"isAnonymous"`
	RequestType           models.RequestType   `json:"requestType"`
	Subject               string               `json:"subject"`
	Description           string               `json:"description"`
	DateRangeStart        *time.Time           `json:"dateRangeStart"`
	DateRangeEnd          *time.Time           `json:"dateRangeEnd"`
	Priority              models.Priority      `json:"priority"`
}

func (n NewRequest) validate() error {
	var missing []string
	if strings.TrimSpace(n.RequesterName) == "" {
		missing = append(missing, "requesterName")
	}
	if n.RequestType == "" {
		missing = append(missing, "requestType")
	}
	if strings.TrimSpace(n.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(n.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// SearchResult is one page of a request search.
type SearchResult struct {
	Requests []models.Request `json:"requests"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// Requests manages the request lifecycle.
type Requests struct {
	hooks
	store     RequestStore
	extractor *extractor.Extractor
	router    *routing.Router
}

func NewRequests(store RequestStore, opts ...Option) *Requests {
	r := &Requests{
		hooks:     defaultHooks(),
		store:     store,
		extractor: extractor.New(),
		router:    routing.New(),
	}
	for _, opt := range opts {
		opt(&r.hooks)
	}
	return r
}

// CreateRequest assigns a tracking number and due date and stores a new
// submitted request. Its complexity is scored from the subject and
// description.
func (s *Requests) CreateRequest(ctx context.Context, in NewRequest, actor Actor) (*models.Request, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	tracking, err := s.nextTrackingNumber(ctx, now.Year())
	if err != nil {
		return nil, err
	}

	req := &models.Request{
		ID:                    uuid.New(),
		TrackingNumber:        tracking,
		RequesterName:         in.RequesterName,
		RequesterEmail:        in.RequesterEmail,
		RequesterPhone:        in.RequesterPhone,
		RequesterOrganization: in.RequesterOrganization,
		RequesterType:         in.RequesterType,
		IsAnonymous:           in.IsAnonymous,
		RequestType:           in.RequestType,
		Subject:               in.Subject,
		Description:           in.Description,
		DateRangeStart:        in.DateRangeStart,
		DateRangeEnd:          in.DateRangeEnd,
		Status:                models.RequestStatusSubmitted,
		Priority:              in.Priority,
		DateSubmitted:         now,
		DateDue:               AddBusinessDays(now, ResponseBusinessDays),
		CreatedBy:             actor.idPtr(),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if req.RequesterType == "" {
		req.RequesterType = models.RequesterCitizen
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	complexity := s.complexity(in.Subject + "\n" + in.Description)
	req.ComplexityScore = &complexity

	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	actorName := actor.Name
	if actorName == "" {
		actorName = in.RequesterName
	}
	s.logActivity(ctx, &models.ActivityLog{
		RequestID:    &req.ID,
		ActivityType: models.ActivityRequestCreated,
		Action:       fmt.Sprintf("FOIA request %s created", tracking),
		ActorID:      actor.idPtr(),
		ActorName:    actorName,
		NewValue:     tracking,
	})

	s.logger.Info("request created", "tracking_number", tracking, "request_id", req.ID)
	return req, nil
}

func (s *Requests) complexity(text string) float64 {
	entities := s.extractor.Extract(text)
	departments := s.router.Route(text)
	return scope.Analyze(text, entities, departments).ComplexityScore
}

func (s *Requests) nextTrackingNumber(ctx context.Context, year int) (string, error) {
	prefix := fmt.Sprintf("%s-%d-", trackingPrefix, year)
	latest, err := s.store.LatestTrackingNumber(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("finding latest tracking number: %w", err)
	}

	next := 1
	if latest != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(latest, prefix))
		if err != nil {
			return "", fmt.Errorf("parsing tracking number %q: %w", latest, err)
		}
		next = n + 1
	}
	return fmt.Sprintf("%s%05d", prefix, next), nil
}

// AddBusinessDays returns the date n weekdays after start. Saturdays and
// Sundays are skipped; holidays are not.
func AddBusinessDays(start time.Time, n int) time.Time {
	d := start
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return d
}

// Get returns a request by id.
func (s *Requests) Get(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return req, nil
}

// GetByTrackingNumber returns the public status of a request.
func (s *Requests) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.RequestStatusView, error) {
	req, err := s.store.GetRequestByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, fmt.Errorf("loading request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("request %s: %w", trackingNumber, ErrNotFound)
	}
	return req.StatusView(), nil
}

// Search lists requests matching f, newest submission first by default.
func (s *Requests) Search(ctx context.Context, f models.RequestFilter) (*SearchResult, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.SortBy == "" {
		f.SortBy = "dateSubmitted"
	}
	if strings.EqualFold(f.SortOrder, "asc") {
		f.SortOrder = "ASC"
	} else {
		f.SortOrder = "DESC"
	}

	reqs, total, err := s.store.SearchRequests(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("searching requests: %w", err)
	}
	if reqs == nil {
		reqs = []models.Request{}
	}
	return &SearchResult{Requests: reqs, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// UpdateStatus moves a request to status. The acknowledgement and
// completion dates are stamped the first time they apply.
func (s *Requests) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus, actor Actor, notes string) (*models.Request, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	old := req.Status
	req.Status = status
	req.UpdatedBy = actor.idPtr()
	req.UpdatedAt = now
	if status == models.RequestStatusAcknowledged && req.DateAcknowledged == nil {
		req.DateAcknowledged = &now
	}
	if status.Terminal() && req.DateCompleted == nil {
		req.DateCompleted = &now
	}

	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("updating request status: %w", err)
	}

	meta := models.JSONB{}
	if notes != "" {
		meta["notes"] = notes
	}
	s.logActivity(ctx, &models.ActivityLog{
		RequestID:    &req.ID,
		ActivityType: models.ActivityStatusChange,
		Action:       fmt.Sprintf("Status changed from %s to %s", old, status),
		ActorID:      actor.idPtr(),
		ActorName:    actor.Name,
		OldValue:     string(old),
		NewValue:     string(status),
		Metadata:     meta,
	})
	return req, nil
}

// Assign gives a request to a staff member. A submitted request moves to
// assigned.
func (s *Requests) Assign(ctx context.Context, id uuid.UUID, assignee string, actor Actor) (*models.Request, error) {
	if strings.TrimSpace(assignee) == "" {
		return nil, fmt.Errorf("%w: missing assignedTo", ErrInvalidRequest)
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var old string
	if req.AssignedTo != nil {
		old = *req.AssignedTo
	}
	req.AssignedTo = &assignee
	req.UpdatedBy = actor.idPtr()
	req.UpdatedAt = s.now()
	if req.Status == models.RequestStatusSubmitted {
		req.Status = models.RequestStatusAssigned
	}

	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("assigning request: %w", err)
	}

	s.logActivity(ctx, &models.ActivityLog{
		RequestID:    &req.ID,
		ActivityType: models.ActivityAssignment,
		Action:       "Request assigned to staff member",
		ActorID:      actor.idPtr(),
		ActorName:    actor.Name,
		OldValue:     old,
		NewValue:     assignee,
	})
	return req, nil
}

// Dashboard summarizes the request backlog.
func (s *Requests) Dashboard(ctx context.Context) (*models.DashboardStats, error) {
	stats, err := s.store.RequestStats(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("loading dashboard stats: %w", err)
	}
	if stats == nil {
		stats = &models.DashboardStats{}
	}
	if stats.ByStatus == nil {
		stats.ByStatus = map[string]int{}
	}
	if stats.ByPriority == nil {
		stats.ByPriority = map[string]int{}
	}
	return stats, nil
}

// NewDocument describes an uploaded file. The bytes live in document
// storage; only the metadata is recorded here.
type NewDocument struct {
	Filename         string `json:"filename"`
	OriginalFilename string `json:"originalFilename"`
	FileType         string `json:"fileType"`
	FileSize         int64  `json:"fileSize"`
	FilePath         string `json:"filePath"`
	PageCount        *int   `json:"pageCount"`
}

// UploadDocument attaches a document to a request and records the upload
// in the activity log.
func (s *Requests) UploadDocument(ctx context.Context, requestID uuid.UUID, in NewDocument, actor Actor) (*models.Document, error) {
	if strings.TrimSpace(in.Filename) == "" {
		return nil, fmt.Errorf("%w: missing filename", ErrInvalidRequest)
	}
	if in.FileSize < 0 {
		return nil, fmt.Errorf("%w: negative fileSize", ErrInvalidRequest)
	}
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	original := in.OriginalFilename
	if original == "" {
		original = in.Filename
	}
	now := s.now()
	doc := &models.Document{
		ID:               uuid.New(),
		RequestID:        req.ID,
		Filename:         in.Filename,
		OriginalFilename: original,
		FileType:         in.FileType,
		FileSize:         in.FileSize,
		FilePath:         in.FilePath,
		Disposition:      models.DispositionResponsive,
		RedactionStatus:  models.DocumentRedactionPending,
		PageCount:        in.PageCount,
		UploadedBy:       actor.idPtr(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}

	s.logActivity(ctx, &models.ActivityLog{
		RequestID:    &req.ID,
		DocumentID:   &doc.ID,
		ActivityType: models.ActivityDocumentUpload,
		Action:       "Document uploaded: " + original,
		ActorID:      actor.idPtr(),
		ActorName:    actor.Name,
		NewValue:     original,
	})

	s.logger.Info("document uploaded", "request_id", req.ID, "document_id", doc.ID)
	return doc, nil
}

// ListDocuments returns the most recent documents, newest first.
func (s *Requests) ListDocuments(ctx context.Context) ([]models.DocumentListItem, error) {
	docs, err := s.store.ListDocuments(ctx, documentListLimit)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	if docs == nil {
		docs = []models.DocumentListItem{}
	}
	return docs, nil
}

// Templates returns the active correspondence templates.
func (s *Requests) Templates(ctx context.Context) ([]models.Template, error) {
	templates, err := s.store.ListActiveTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	if templates == nil {
		templates = []models.Template{}
	}
	return templates, nil
}
