package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/govworks/foia/internal/auth"
	"github.com/govworks/foia/internal/config"
	"github.com/govworks/foia/internal/entitygraph"
	"github.com/govworks/foia/internal/foia"
	"github.com/govworks/foia/internal/metrics"
	"github.com/govworks/foia/internal/models"
	"github.com/govworks/foia/internal/queue"
	"github.com/govworks/foia/internal/scheduler"
	"github.com/govworks/foia/internal/similarity"
)

// RequestAnalyzer is the request intelligence used by the public AI
// endpoints.
type RequestAnalyzer interface {
	AnalyzeRequest(ctx context.Context, text string, opts foia.RequestOptions) (*foia.RequestAnalysis, error)
	FindSimilar(ctx context.Context, text string) []similarity.Match
	GenerateSuggestions(text string) []string
}

type DocumentService interface {
	AnalyzeDocument(ctx context.Context, documentID uuid.UUID, text string, opts foia.DocumentOptions) (*foia.DocumentResult, error)
	ApplyRedactions(ctx context.Context, analysisID uuid.UUID, ids []uuid.UUID, actor foia.Actor) (*foia.ApplyResult, error)
	GetAnalysisResults(ctx context.Context, documentID uuid.UUID) (*models.AnalysisResults, error)
}

type RequestService interface {
	CreateRequest(ctx context.Context, in foia.NewRequest, actor foia.Actor) (*models.Request, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Request, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.RequestStatusView, error)
	Search(ctx context.Context, f models.RequestFilter) (*foia.SearchResult, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus, actor foia.Actor, notes string) (*models.Request, error)
	Assign(ctx context.Context, id uuid.UUID, assignee string, actor foia.Actor) (*models.Request, error)
	Dashboard(ctx context.Context) (*models.DashboardStats, error)
	UploadDocument(ctx context.Context, requestID uuid.UUID, in foia.NewDocument, actor foia.Actor) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.DocumentListItem, error)
	Templates(ctx context.Context) ([]models.Template, error)
}

// JobQueue is the part of the document queue the API drives.
type JobQueue interface {
	EnqueueDocumentJob(ctx context.Context, job *queue.Job) error
	GetProgress(ctx context.Context, jobID uuid.UUID) (*queue.JobProgress, error)
	GetQueueStats(ctx context.Context) (map[string]int64, error)
	GetActiveWorkers(ctx context.Context, timeout time.Duration) ([]string, error)
}

type RelatedFinder interface {
	RelatedRequests(ctx context.Context, requestID uuid.UUID, limit int) ([]entitygraph.RelatedRequest, error)
}

type ActivityLister interface {
	ListActivity(ctx context.Context, requestID uuid.UUID, limit int) ([]models.ActivityLog, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the API. Queue, Graph, Scheduler, Metrics
// and Activity are optional; their endpoints answer 503 when absent.
type Deps struct {
	Requests  RequestService
	Architect RequestAnalyzer
	Documents DocumentService
	Auth      *auth.Service
	DB        Pinger

	Queue     JobQueue
	Graph     RelatedFinder
	Activity  ActivityLister
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Metrics
}

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	http   *http.Server
	logger *slog.Logger

	requests  RequestService
	architect RequestAnalyzer
	documents DocumentService
	authSvc   *auth.Service
	db        Pinger
	queue     JobQueue
	graph     RelatedFinder
	activity  ActivityLister
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics

	limiter *ipRateLimiter
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(cfg *config.Config, deps Deps, opts ...ServerOption) (*Server, error) {
	if deps.Requests == nil || deps.Architect == nil || deps.Documents == nil || deps.Auth == nil {
		return nil, errors.New("requests, architect, documents and auth are required")
	}

	s := &Server{
		cfg:       cfg,
		router:    chi.NewRouter(),
		logger:    slog.Default(),
		requests:  deps.Requests,
		architect: deps.Architect,
		documents: deps.Documents,
		authSvc:   deps.Auth,
		db:        deps.DB,
		queue:     deps.Queue,
		graph:     deps.Graph,
		activity:  deps.Activity,
		scheduler: deps.Scheduler,
		metrics:   deps.Metrics,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.limiter = newIPRateLimiter(cfg.Analysis.RateLimit, cfg.Analysis.RateBurst)

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(s.corsMiddleware())
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
}

func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	allowOrigin := s.cfg.Server.CORSAllowOrigin
	if allowOrigin == "" || allowOrigin == "*" {
		allowOrigin = "*"
		s.logger.Warn("CORS Allow-Origin set to '*' - configure server.cors_allow_origin in production")
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: allowOrigin != "*",
		MaxAge:           300,
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.login)
		r.Post("/auth/refresh", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authSvc.Middleware)
			r.Post("/auth/logout", s.logout)
			r.Get("/auth/me", s.getCurrentUser)
		})

		r.Route("/foia", func(r chi.Router) {
			r.With(s.authSvc.OptionalAuth).Post("/requests", s.createRequest)
			r.Get("/requests/{trackingNumber}/status", s.getRequestStatus)

			r.Route("/ai", func(r chi.Router) {
				r.Use(s.limiter.Middleware)
				r.Post("/analyze-request", s.analyzeRequest)
				r.Post("/suggest", s.suggest)
				r.Post("/find-existing", s.findExisting)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.authSvc.Middleware)
				r.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))

				r.Get("/dashboard", s.getDashboard)
				r.Get("/templates", s.listTemplates)

				r.Route("/requests", func(r chi.Router) {
					r.Get("/", s.listRequests)
					r.Get("/export.csv", s.exportRequests)
					r.Get("/{requestID}", s.getRequest)
					r.Put("/{requestID}/status", s.updateRequestStatus)
					r.With(auth.RequireRole(auth.RoleAdmin)).Put("/{requestID}/assign", s.assignRequest)
					r.Get("/{requestID}/related", s.getRelatedRequests)
					r.Get("/{requestID}/activity", s.getRequestActivity)
					r.Post("/{requestID}/documents", s.uploadDocument)
				})

				r.Route("/documents", func(r chi.Router) {
					r.Get("/", s.listDocuments)
					r.Post("/batch-analyze", s.batchAnalyzeDocuments)
					r.Post("/{documentID}/analyze", s.analyzeDocument)
					r.Post("/{documentID}/analyze-async", s.analyzeDocumentAsync)
					r.Get("/{documentID}/analysis", s.getDocumentAnalysis)
					r.Get("/{documentID}/report.pdf", s.getDocumentReport)
					r.Post("/{documentID}/apply-redactions", s.applyRedactions)
				})

				r.Get("/jobs/{jobID}", s.getJobProgress)
				r.Get("/queue/stats", s.getQueueStats)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(auth.RoleAdmin))

					r.Route("/scheduler/jobs", func(r chi.Router) {
						r.Get("/", s.listScheduledJobs)
						r.Post("/{jobID}/run", s.runScheduledJobNow)
						r.Get("/{jobID}/executions", s.getJobExecutions)
					})

					r.Route("/users", func(r chi.Router) {
						r.Get("/", s.listUsers)
						r.Post("/", s.createUser)
						r.Delete("/{userID}", s.deleteUser)
					})
				})
			})
		})
	})
}

func (s *Server) Run(ctx context.Context) error {
	if s.scheduler != nil {
		s.scheduler.Start()
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if s.scheduler != nil {
			s.scheduler.Stop(shutdownCtx)
		}
		return s.http.Shutdown(shutdownCtx)
	}
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    *apiMeta    `json:"meta,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiMeta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset"`
}

func writeEnvelope(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	writeEnvelope(w, status, apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func respondJSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *apiMeta) {
	writeEnvelope(w, status, apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	})
}

// respondDegraded reports a failure while still returning a well-formed
// payload the client can render.
func respondDegraded(w http.ResponseWriter, status int, code, message string, data interface{}) {
	writeEnvelope(w, status, apiResponse{
		Success: false,
		Data:    data,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "db_unavailable", "Database not available")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
