package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/govworks/foia/internal/auth"
	"github.com/govworks/foia/internal/config"
	"github.com/govworks/foia/internal/entitygraph"
	"github.com/govworks/foia/internal/foia"
	"github.com/govworks/foia/internal/models"
	"github.com/govworks/foia/internal/queue"
	"github.com/govworks/foia/internal/similarity"
)

type fakeRequests struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*models.Request
	created  []foia.NewRequest
	actors   []foia.Actor
	filters  []models.RequestFilter
	notes    string
	failWith error

	uploads   []foia.NewDocument
	docs      []models.DocumentListItem
	templates []models.Template
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{byID: map[uuid.UUID]*models.Request{}}
}

func (f *fakeRequests) add(r models.Request) *models.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	f.byID[r.ID] = &r
	return &r
}

func (f *fakeRequests) CreateRequest(_ context.Context, in foia.NewRequest, actor foia.Actor) (*models.Request, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if in.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", foia.ErrInvalidRequest)
	}
	f.mu.Lock()
	f.created = append(f.created, in)
	f.actors = append(f.actors, actor)
	f.mu.Unlock()
	return f.add(models.Request{
		TrackingNumber: fmt.Sprintf("FOIA-2026-%05d", len(f.created)),
		Status:         models.RequestStatusSubmitted,
		Subject:        in.Subject,
		Description:    in.Description,
		RequesterName:  in.RequesterName,
		DateSubmitted:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		DateDue:        time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
	}), nil
}

func (f *fakeRequests) Get(_ context.Context, id uuid.UUID) (*models.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, foia.ErrNotFound)
	}
	return r, nil
}

func (f *fakeRequests) GetByTrackingNumber(_ context.Context, tn string) (*models.RequestStatusView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byID {
		if r.TrackingNumber == tn {
			return r.StatusView(), nil
		}
	}
	return nil, fmt.Errorf("request %s: %w", tn, foia.ErrNotFound)
}

func (f *fakeRequests) Search(_ context.Context, filter models.RequestFilter) (*foia.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.failWith != nil {
		return nil, f.failWith
	}
	var all []models.Request
	for _, r := range f.byID {
		all = append(all, *r)
	}
	limit := filter.Limit
	if limit == 0 {
		limit = 50
	}
	if filter.Offset >= len(all) {
		return &foia.SearchResult{Requests: []models.Request{}, Total: len(all), Limit: limit, Offset: filter.Offset}, nil
	}
	end := min(filter.Offset+limit, len(all))
	return &foia.SearchResult{Requests: all[filter.Offset:end], Total: len(all), Limit: limit, Offset: filter.Offset}, nil
}

func (f *fakeRequests) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus, actor foia.Actor, notes string) (*models.Request, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", foia.ErrInvalidStatus, status)
	}
	r, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r.Status = status
	f.notes = notes
	f.actors = append(f.actors, actor)
	return r, nil
}

func (f *fakeRequests) Assign(ctx context.Context, id uuid.UUID, assignee string, actor foia.Actor) (*models.Request, error) {
	if strings.TrimSpace(assignee) == "" {
		return nil, fmt.Errorf("%w: missing assignedTo", foia.ErrInvalidRequest)
	}
	r, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r.AssignedTo = &assignee
	r.Status = models.RequestStatusAssigned
	f.actors = append(f.actors, actor)
	return r, nil
}

func (f *fakeRequests) Dashboard(context.Context) (*models.DashboardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.DashboardStats{
		TotalRequests: len(f.byID),
		ByStatus:      map[string]int{"submitted": len(f.byID)},
		ByPriority:    map[string]int{},
	}, nil
}

func (f *fakeRequests) UploadDocument(ctx context.Context, requestID uuid.UUID, in foia.NewDocument, actor foia.Actor) (*models.Document, error) {
	if strings.TrimSpace(in.Filename) == "" {
		return nil, fmt.Errorf("%w: missing filename", foia.ErrInvalidRequest)
	}
	req, err := f.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, in)
	f.actors = append(f.actors, actor)
	doc := models.Document{
		ID:               uuid.New(),
		RequestID:        req.ID,
		Filename:         in.Filename,
		OriginalFilename: in.OriginalFilename,
		FileSize:         in.FileSize,
		Disposition:      models.DispositionResponsive,
		RedactionStatus:  models.DocumentRedactionPending,
	}
	f.docs = append([]models.DocumentListItem{{
		Document: doc,
		Request:  models.DocumentRequestRef{TrackingNumber: req.TrackingNumber, Subject: req.Subject, Status: req.Status},
	}}, f.docs...)
	return &doc, nil
}

func (f *fakeRequests) ListDocuments(context.Context) ([]models.DocumentListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return append([]models.DocumentListItem{}, f.docs...), nil
}

func (f *fakeRequests) Templates(context.Context) ([]models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return append([]models.Template{}, f.templates...), nil
}

type fakeArchitect struct {
	mu      sync.Mutex
	err     error
	texts   []string
	opts    []foia.RequestOptions
	matches []similarity.Match
}

func (f *fakeArchitect) AnalyzeRequest(_ context.Context, text string, opts foia.RequestOptions) (*foia.RequestAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	res := foia.EmptyRequestAnalysis()
	res.AnalysisID = uuid.New()
	res.Confidence = 0.62
	return res, nil
}

func (f *fakeArchitect) FindSimilar(context.Context, string) []similarity.Match {
	return f.matches
}

func (f *fakeArchitect) GenerateSuggestions(text string) []string {
	if len(text) < 10 {
		return nil
	}
	return []string{"Specify a date range to narrow the search."}
}

type fakeDocuments struct {
	mu       sync.Mutex
	results  map[uuid.UUID]*models.AnalysisResults
	applied  uuid.UUID
	ids      []uuid.UUID
	inflight int32
	peak     int32
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{results: map[uuid.UUID]*models.AnalysisResults{}}
}

func (f *fakeDocuments) AnalyzeDocument(_ context.Context, id uuid.UUID, text string, opts foia.DocumentOptions) (*foia.DocumentResult, error) {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	if strings.Contains(text, "corrupt") {
		return nil, fmt.Errorf("classifying document: unreadable text")
	}
	return &foia.DocumentResult{AnalysisID: uuid.New(), DocumentID: id}, nil
}

func (f *fakeDocuments) ApplyRedactions(_ context.Context, analysisID uuid.UUID, ids []uuid.UUID, _ foia.Actor) (*foia.ApplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = analysisID
	f.ids = ids
	return &foia.ApplyResult{Success: true, ApprovedCount: len(ids), Message: "Redactions approved."}, nil
}

func (f *fakeDocuments) GetAnalysisResults(_ context.Context, documentID uuid.UUID) (*models.AnalysisResults, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.results[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, foia.ErrNotFound)
	}
	return res, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	jobs     []*queue.Job
	progress map[uuid.UUID]*queue.JobProgress
}

func (f *fakeQueue) EnqueueDocumentJob(_ context.Context, job *queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job.ID = uuid.New()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) GetProgress(_ context.Context, id uuid.UUID) (*queue.JobProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress[id], nil
}

func (f *fakeQueue) GetQueueStats(context.Context) (map[string]int64, error) {
	return map[string]int64{"pending": 2, "processing": 1, "completed": 7, "failed": 0}, nil
}

func (f *fakeQueue) GetActiveWorkers(context.Context, time.Duration) ([]string, error) {
	return []string{"host-a1b2c3d4"}, nil
}

type fakeGraph struct {
	related []entitygraph.RelatedRequest
}

func (f *fakeGraph) RelatedRequests(_ context.Context, _ uuid.UUID, limit int) ([]entitygraph.RelatedRequest, error) {
	if len(f.related) > limit {
		return f.related[:limit], nil
	}
	return f.related, nil
}

type fakeActivity struct {
	entries []models.ActivityLog
}

func (f *fakeActivity) ListActivity(_ context.Context, id uuid.UUID, _ int) ([]models.ActivityLog, error) {
	var out []models.ActivityLog
	for _, e := range f.entries {
		if e.RequestID != nil && *e.RequestID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

type memUsers struct {
	mu     sync.Mutex
	users  map[string]*auth.User
	tokens map[string]bool
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]*auth.User{}, tokens: map[string]bool{}}
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, auth.ErrUserNotFound
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (m *memUsers) CreateUser(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = uuid.NewString()
	m.users[user.ID] = user
	return nil
}

func (m *memUsers) UpdateUser(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memUsers) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return auth.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memUsers) ListUsers(context.Context) ([]*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*auth.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memUsers) StoreRefreshToken(_ context.Context, userID, token string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID+"|"+token] = true
	return nil
}

func (m *memUsers) ValidateRefreshToken(_ context.Context, userID, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[userID+"|"+token], nil
}

func (m *memUsers) RevokeRefreshToken(_ context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID+"|"+token)
	return nil
}

func (m *memUsers) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.tokens {
		if strings.HasPrefix(k, userID+"|") {
			delete(m.tokens, k)
		}
	}
	return nil
}

const testPassword = "correct-horse-battery"

type testEnv struct {
	srv       *Server
	cfg       *config.Config
	requests  *fakeRequests
	architect *fakeArchitect
	documents *fakeDocuments
	queue     *fakeQueue
	users     *memUsers
	authSvc   *auth.Service

	adminToken  string
	staffToken  string
	viewerToken string
	staffID     string
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.CORSAllowOrigin = "https://records.example.gov"
	cfg.Analysis = config.AnalysisConfig{
		BatchConcurrency: 2,
		MaxBatchSize:     5,
		RateLimit:        1000,
		RateBurst:        1000,
		MaxTextBytes:     1 << 20,
	}
	return cfg
}

// newTestEnv builds a server over fakes. mutate may adjust the deps and
// config before the server is constructed.
func newTestEnv(t *testing.T, mutate ...func(*Deps, *config.Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		cfg:       testConfig(),
		requests:  newFakeRequests(),
		architect: &fakeArchitect{},
		documents: newFakeDocuments(),
		queue:     &fakeQueue{progress: map[uuid.UUID]*queue.JobProgress{}},
		users:     newMemUsers(),
	}
	env.authSvc = auth.NewService(auth.Config{JWTSecret: "api-test-secret"}, env.users)

	ctx := context.Background()
	for _, u := range []struct {
		email string
		role  auth.Role
		dst   *string
	}{
		{"admin@records.example.gov", auth.RoleAdmin, &env.adminToken},
		{"staff@records.example.gov", auth.RoleStaff, &env.staffToken},
		{"viewer@records.example.gov", auth.RoleViewer, &env.viewerToken},
	} {
		user, err := env.authSvc.CreateUser(ctx, u.email, strings.Split(u.email, "@")[0], testPassword, u.role)
		require.NoError(t, err)
		if u.role == auth.RoleStaff {
			env.staffID = user.ID
		}
		tokens, err := env.authSvc.Login(ctx, u.email, testPassword)
		require.NoError(t, err)
		*u.dst = tokens.AccessToken
	}

	deps := Deps{
		Requests:  env.requests,
		Architect: env.architect,
		Documents: env.documents,
		Auth:      env.authSvc,
		Queue:     env.queue,
	}
	for _, m := range mutate {
		m(&deps, env.cfg)
	}

	srv, err := NewServer(env.cfg, deps)
	require.NoError(t, err)
	env.srv = srv
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.10:51000"
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doWithHeaders(t *testing.T, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
	Meta    *apiMeta        `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}
