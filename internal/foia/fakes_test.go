package foia

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/models"
)

var errBoom = errors.New("boom")

// memStore is an in-memory implementation of every store the services use.
type memStore struct {
	mu sync.Mutex

	analyses   []*models.RequestAnalysis
	entities   []models.ExtractedEntity
	documents  map[uuid.UUID]*models.DocumentAnalysis
	statuses   []models.ProcessingStatus
	pii        []*models.DetectedPII
	exemptions []*models.ExemptionClassification
	redactions map[uuid.UUID]*models.RedactionSuggestion
	requests   map[uuid.UUID]*models.Request
	files      []*models.Document
	templates  []models.Template

	failAnalysis   error
	failPII        error
	failExemption  error
	failSimilarity error
}

func newMemStore() *memStore {
	return &memStore{
		documents:  make(map[uuid.UUID]*models.DocumentAnalysis),
		redactions: make(map[uuid.UUID]*models.RedactionSuggestion),
		requests:   make(map[uuid.UUID]*models.Request),
	}
}

func (m *memStore) CreateRequestAnalysis(_ context.Context, a *models.RequestAnalysis) error {
	if m.failAnalysis != nil {
		return m.failAnalysis
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses = append(m.analyses, a)
	return nil
}

func (m *memStore) CreateExtractedEntities(_ context.Context, rows []models.ExtractedEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = append(m.entities, rows...)
	return nil
}

func (m *memStore) CreateDetectedPII(_ context.Context, item *models.DetectedPII) error {
	if m.failPII != nil {
		return m.failPII
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pii = append(m.pii, item)
	return nil
}

func (m *memStore) GetDocumentAnalysisByDocumentID(_ context.Context, documentID uuid.UUID) (*models.DocumentAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.documents {
		if d.DocumentID == documentID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateDocumentAnalysis(_ context.Context, a *models.DocumentAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.documents {
		if d.DocumentID == a.DocumentID {
			a.ID = d.ID
			return nil
		}
	}
	cp := *a
	m.documents[a.ID] = &cp
	return nil
}

func (m *memStore) UpdateDocumentAnalysis(_ context.Context, a *models.DocumentAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.documents[a.ID] = &cp
	return nil
}

func (m *memStore) SetDocumentProcessingStatus(_ context.Context, id uuid.UUID, status models.ProcessingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return errors.New("no such analysis")
	}
	d.ProcessingStatus = status
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *memStore) ResetDocumentAnalysis(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return errors.New("no such analysis")
	}

	kept := m.pii[:0]
	for _, p := range m.pii {
		if p.AnalysisID != id {
			kept = append(kept, p)
			continue
		}
		for sid, s := range m.redactions {
			if s.PIIID == p.ID {
				delete(m.redactions, sid)
			}
		}
	}
	m.pii = kept

	keptEx := m.exemptions[:0]
	for _, e := range m.exemptions {
		if e.AnalysisID != id {
			keptEx = append(keptEx, e)
		}
	}
	m.exemptions = keptEx

	d.ProcessingStatus = models.ProcessingProcessing
	m.statuses = append(m.statuses, models.ProcessingProcessing)
	return nil
}

func (m *memStore) CreateExemptionClassification(_ context.Context, e *models.ExemptionClassification) error {
	if m.failExemption != nil {
		return m.failExemption
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exemptions = append(m.exemptions, e)
	return nil
}

func (m *memStore) CreateRedactionSuggestion(_ context.Context, s *models.RedactionSuggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redactions[s.ID] = s
	return nil
}

func (m *memStore) analysisOfPII(piiID uuid.UUID) uuid.UUID {
	for _, p := range m.pii {
		if p.ID == piiID {
			return p.AnalysisID
		}
	}
	return uuid.Nil
}

func (m *memStore) ApproveRedactions(_ context.Context, analysisID uuid.UUID, ids []uuid.UUID, reviewedBy *string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		s, ok := m.redactions[id]
		if !ok || m.analysisOfPII(s.PIIID) != analysisID || s.Status != models.RedactionSuggested {
			continue
		}
		s.Status = models.RedactionApproved
		s.ReviewedBy = reviewedBy
		n++
	}
	return n, nil
}

func (m *memStore) GetAnalysisResults(_ context.Context, documentID uuid.UUID) (*models.AnalysisResults, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.documents {
		if d.DocumentID != documentID {
			continue
		}
		res := &models.AnalysisResults{
			AnalysisID:       d.ID,
			DocumentID:       d.DocumentID,
			DocumentType:     d.DocumentType,
			ProcessingStatus: d.ProcessingStatus,
			Metadata:         d.Metadata,
		}
		for _, p := range m.pii {
			if p.AnalysisID == d.ID {
				res.DetectedPII = append(res.DetectedPII, models.PIIWithSuggestion{DetectedPII: *p})
			}
		}
		return res, nil
	}
	return nil, nil
}

func (m *memStore) FindCompletedMatching(_ context.Context, terms []string, limit int) ([]models.Request, error) {
	if m.failSimilarity != nil {
		return nil, m.failSimilarity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Request
	for _, r := range m.requests {
		if r.Status != models.RequestStatusReleased && r.Status != models.RequestStatusClosed {
			continue
		}
		desc := strings.ToLower(r.Description)
		for _, t := range terms {
			if strings.Contains(desc, strings.ToLower(t)) {
				out = append(out, *r)
				break
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CreateRequest(_ context.Context, r *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *memStore) LatestTrackingNumber(_ context.Context, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var nums []string
	for _, r := range m.requests {
		if strings.HasPrefix(r.TrackingNumber, prefix) {
			nums = append(nums, r.TrackingNumber)
		}
	}
	if len(nums) == 0 {
		return "", nil
	}
	sort.Strings(nums)
	return nums[len(nums)-1], nil
}

func (m *memStore) GetRequest(_ context.Context, id uuid.UUID) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetRequestByTrackingNumber(_ context.Context, tn string) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.TrackingNumber == tn {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) SearchRequests(_ context.Context, f models.RequestFilter) ([]models.Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Request
	for _, r := range m.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *memStore) UpdateRequest(_ context.Context, r *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; !ok {
		return errors.New("no such request")
	}
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *memStore) RequestStats(_ context.Context, now time.Time) (*models.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.DashboardStats{ByStatus: map[string]int{}, ByPriority: map[string]int{}}
	for _, r := range m.requests {
		stats.TotalRequests++
		stats.ByStatus[string(r.Status)]++
		stats.ByPriority[string(r.Priority)]++
		if !r.Status.Terminal() && r.DateDue.Before(now) {
			stats.Overdue++
		}
	}
	return stats, nil
}

func (m *memStore) CreateDocument(_ context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.files = append(m.files, &cp)
	return nil
}

func (m *memStore) ListDocuments(_ context.Context, limit int) ([]models.DocumentListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DocumentListItem
	for i := len(m.files) - 1; i >= 0 && len(out) < limit; i-- {
		d := m.files[i]
		item := models.DocumentListItem{Document: *d}
		if r, ok := m.requests[d.RequestID]; ok {
			item.Request = models.DocumentRequestRef{TrackingNumber: r.TrackingNumber, Subject: r.Subject, Status: r.Status}
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *memStore) ListActiveTemplates(context.Context) ([]models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Template
	for _, t := range m.templates {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

type memActivity struct {
	mu      sync.Mutex
	entries []*models.ActivityLog
	err     error
}

func (a *memActivity) LogActivity(_ context.Context, e *models.ActivityLog) error {
	if a.err != nil {
		return a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

type memPublisher struct {
	events []models.AnalysisEvent
	err    error
}

func (p *memPublisher) Publish(_ context.Context, e models.AnalysisEvent) error {
	p.events = append(p.events, e)
	return p.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
