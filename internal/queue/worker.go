package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/foia"
)

// JobQueue is the part of Queue a Worker drives.
type JobQueue interface {
	DequeueJob(ctx context.Context, workerID string) (*Job, error)
	CompleteJob(ctx context.Context, job *Job, result *JobProgress, success bool) error
	RequeueJob(ctx context.Context, job *Job, errorMsg string) error
	WorkerHeartbeat(ctx context.Context, workerID string) error
	CleanupStaleJobs(ctx context.Context, timeout time.Duration) (int, error)
}

// Analyzer runs the document analysis flow.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, documentID uuid.UUID, text string, opts foia.DocumentOptions) (*foia.DocumentResult, error)
}

// TextSource fetches extracted document text from a storage URI.
type TextSource interface {
	FetchText(ctx context.Context, uri string) (string, error)
}

type Worker struct {
	id       string
	queue    JobQueue
	analyzer Analyzer
	source   TextSource
	logger   *slog.Logger

	jobTimeout   time.Duration
	idleWait     time.Duration
	staleTimeout time.Duration
	onFailure    func(ctx context.Context, job *Job, err error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running bool
	mu      sync.Mutex
}

type WorkerConfig struct {
	Queue    JobQueue
	Analyzer Analyzer
	// Source may be nil when every job carries inline text.
	Source       TextSource
	Logger       *slog.Logger
	JobTimeout   time.Duration
	IdleWait     time.Duration
	StaleTimeout time.Duration
	// OnFailure is called when a job is given up on, either rejected
	// outright or out of attempts.
	OnFailure func(ctx context.Context, job *Job, err error)
}

func NewWorker(cfg WorkerConfig) *Worker {
	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])

	w := &Worker{
		id:           workerID,
		queue:        cfg.Queue,
		analyzer:     cfg.Analyzer,
		source:       cfg.Source,
		logger:       cfg.Logger,
		jobTimeout:   cfg.JobTimeout,
		idleWait:     cfg.IdleWait,
		staleTimeout: cfg.StaleTimeout,
		onFailure:    cfg.OnFailure,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("worker_id", workerID)
	if w.jobTimeout == 0 {
		w.jobTimeout = 5 * time.Minute
	}
	if w.idleWait == 0 {
		w.idleWait = time.Second
	}
	if w.staleTimeout == 0 {
		w.staleTimeout = 30 * time.Minute
	}
	return w
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.logger.Info("worker starting")

	w.wg.Add(3)
	go w.heartbeatLoop()
	go w.processLoop()
	go w.staleJobLoop()

	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopping")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) heartbeatLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	_ = w.queue.WorkerHeartbeat(w.ctx, w.id)
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.WorkerHeartbeat(w.ctx, w.id); err != nil {
				w.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.ctx.Done():
	case <-time.After(d):
	}
}

func (w *Worker) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		job, err := w.queue.DequeueJob(w.ctx, w.id)
		if err != nil {
			if w.ctx.Err() == nil {
				w.logger.Error("error dequeuing job", "error", err)
			}
			w.sleep(5 * w.idleWait)
			continue
		}
		if job == nil {
			w.sleep(w.idleWait)
			continue
		}

		w.handle(job)
	}
}

// handle runs one job and settles it. Client errors such as empty text
// fail the job at once since a retry cannot succeed.
func (w *Worker) handle(job *Job) {
	log := w.logger.With("job_id", job.ID, "document_id", job.DocumentID)
	log.Info("processing job", "attempt", job.Attempts+1)

	result, err := w.ProcessJob(w.ctx, job)
	switch {
	case err == nil:
		log.Info("job completed", "pii_count", result.PIICount)
		if err := w.queue.CompleteJob(w.ctx, job, result, true); err != nil {
			log.Error("marking job complete", "error", err)
		}
	case foia.IsClientError(err) || errors.Is(err, errNoSource):
		log.Warn("job rejected", "error", err)
		if cerr := w.queue.CompleteJob(w.ctx, job, &JobProgress{Errors: []string{err.Error()}}, false); cerr != nil {
			log.Error("marking job failed", "error", cerr)
		}
		w.failed(job, err)
	default:
		log.Error("job failed", "error", err)
		if rerr := w.queue.RequeueJob(w.ctx, job, err.Error()); rerr != nil {
			log.Error("requeuing job", "error", rerr)
		}
		if job.Attempts >= MaxAttempts {
			w.failed(job, err)
		}
	}
}

func (w *Worker) failed(job *Job, err error) {
	if w.onFailure != nil {
		w.onFailure(w.ctx, job, err)
	}
}

var errNoSource = errors.New("job has neither text nor a readable source")

// ProcessJob resolves the job's text and analyzes it.
func (w *Worker) ProcessJob(ctx context.Context, job *Job) (*JobProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	text := job.Text
	if text == "" {
		if job.Source == "" || w.source == nil {
			return nil, errNoSource
		}
		fetched, err := w.source.FetchText(ctx, job.Source)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", job.Source, err)
		}
		text = fetched
	}

	res, err := w.analyzer.AnalyzeDocument(ctx, job.DocumentID, text, foia.DocumentOptions{PageCount: job.PageCount})
	if err != nil {
		return nil, err
	}

	analysisID := res.AnalysisID
	return &JobProgress{
		JobID:          job.ID,
		DocumentID:     job.DocumentID,
		AnalysisID:     &analysisID,
		DocumentType:   res.DocumentType.Type,
		PIICount:       len(res.DetectedPII),
		ExemptionCount: len(res.Exemptions),
		RedactionCount: len(res.RedactionSuggestions),
	}, nil
}

func (w *Worker) staleJobLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			cleaned, err := w.queue.CleanupStaleJobs(w.ctx, w.staleTimeout)
			if err != nil {
				w.logger.Error("error cleaning stale jobs", "error", err)
			} else if cleaned > 0 {
				w.logger.Info("requeued stale jobs", "count", cleaned)
			}
		}
	}
}
