package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DocumentJobsQueue      = "foia:jobs:document"
	DocumentJobsProcessing = "foia:jobs:processing"
	DocumentJobsCompleted  = "foia:jobs:completed"
	DocumentJobsFailed     = "foia:jobs:failed"
	WorkerHeartbeatKey     = "foia:workers:heartbeat"
	JobProgressPrefix      = "foia:job:progress:"

	JobTypeDocumentAnalysis = "document_analysis"

	// MaxAttempts is how many times a job runs before it is marked failed.
	MaxAttempts = 3

	progressTTL = 24 * time.Hour
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Queue struct {
	client *redis.Client
	now    func() time.Time
}

func New(cfg Config) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Queue{client: client, now: time.Now}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Job asks a worker to analyze one document. The text is either inline or
// fetched from Source, a storage URI such as s3://bucket/key.
type Job struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	DocumentID  uuid.UUID `json:"documentId"`
	Source      string    `json:"source,omitempty"`
	Text        string    `json:"text,omitempty"`
	PageCount   int       `json:"pageCount,omitempty"`
	RequestedBy string    `json:"requestedBy,omitempty"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"createdAt"`
	Attempts    int       `json:"attempts"`
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type JobProgress struct {
	JobID          uuid.UUID  `json:"jobId"`
	DocumentID     uuid.UUID  `json:"documentId"`
	Status         JobStatus  `json:"status"`
	AnalysisID     *uuid.UUID `json:"analysisId,omitempty"`
	DocumentType   string     `json:"documentType,omitempty"`
	PIICount       int        `json:"piiCount"`
	ExemptionCount int        `json:"exemptionCount"`
	RedactionCount int        `json:"redactionCount"`
	Attempts       int        `json:"attempts"`
	Errors         []string   `json:"errors"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	WorkerID       string     `json:"workerId,omitempty"`
}

func (q *Queue) EnqueueDocumentJob(ctx context.Context, job *Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Type == "" {
		job.Type = JobTypeDocumentAnalysis
	}
	job.CreatedAt = q.now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	score := float64(job.CreatedAt.Unix()) - float64(job.Priority*1000)

	if err := q.client.ZAdd(ctx, DocumentJobsQueue, redis.Z{
		Score:  score,
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}

	progress := &JobProgress{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Status:     JobPending,
	}
	if err := q.UpdateProgress(ctx, progress); err != nil {
		return fmt.Errorf("initializing progress: %w", err)
	}

	return nil
}

// DequeueJob pops the next due job, or returns nil when none is ready.
// Requeued jobs carry a future score and stay put until their backoff ends.
func (q *Queue) DequeueJob(ctx context.Context, workerID string) (*Job, error) {
	results, err := q.client.ZPopMin(ctx, DocumentJobsQueue, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("dequeuing job: %w", err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	if results[0].Score > float64(q.now().Unix()) {
		q.client.ZAdd(ctx, DocumentJobsQueue, results[0])
		return nil, nil
	}

	member, _ := results[0].Member.(string)
	var job Job
	if err := json.Unmarshal([]byte(member), &job); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}

	if err := q.client.SAdd(ctx, DocumentJobsProcessing, member).Err(); err != nil {
		q.client.ZAdd(ctx, DocumentJobsQueue, results[0])
		return nil, fmt.Errorf("marking job as processing: %w", err)
	}

	progress, _ := q.GetProgress(ctx, job.ID)
	if progress == nil {
		progress = &JobProgress{JobID: job.ID, DocumentID: job.DocumentID}
	}
	now := q.now()
	progress.Status = JobRunning
	progress.StartedAt = &now
	progress.WorkerID = workerID
	progress.Attempts = job.Attempts + 1
	_ = q.UpdateProgress(ctx, progress)

	return &job, nil
}

// CompleteJob moves job out of the processing set. result, when non-nil,
// is merged into the stored progress.
func (q *Queue) CompleteJob(ctx context.Context, job *Job, result *JobProgress, success bool) error {
	data, _ := json.Marshal(job)

	q.client.SRem(ctx, DocumentJobsProcessing, string(data))

	targetSet := DocumentJobsCompleted
	status := JobCompleted
	if !success {
		targetSet = DocumentJobsFailed
		status = JobFailed
	}

	if err := q.client.SAdd(ctx, targetSet, job.ID.String()).Err(); err != nil {
		return fmt.Errorf("marking job complete: %w", err)
	}

	progress, _ := q.GetProgress(ctx, job.ID)
	if progress == nil {
		progress = &JobProgress{JobID: job.ID, DocumentID: job.DocumentID}
	}
	if result != nil {
		progress.AnalysisID = result.AnalysisID
		progress.DocumentType = result.DocumentType
		progress.PIICount = result.PIICount
		progress.ExemptionCount = result.ExemptionCount
		progress.RedactionCount = result.RedactionCount
		progress.Errors = append(progress.Errors, result.Errors...)
	}
	now := q.now()
	progress.Status = status
	progress.CompletedAt = &now
	_ = q.UpdateProgress(ctx, progress)

	return nil
}

// RequeueJob schedules a failed attempt again with linear backoff, or marks
// the job failed once MaxAttempts is reached.
func (q *Queue) RequeueJob(ctx context.Context, job *Job, errorMsg string) error {
	data, _ := json.Marshal(job)

	q.client.SRem(ctx, DocumentJobsProcessing, string(data))

	job.Attempts++

	if job.Attempts >= MaxAttempts {
		return q.CompleteJob(ctx, job, &JobProgress{Errors: []string{errorMsg}}, false)
	}

	newData, _ := json.Marshal(job)
	backoff := time.Duration(job.Attempts*30) * time.Second
	score := float64(q.now().Add(backoff).Unix())

	if err := q.client.ZAdd(ctx, DocumentJobsQueue, redis.Z{
		Score:  score,
		Member: string(newData),
	}).Err(); err != nil {
		return fmt.Errorf("requeuing job: %w", err)
	}

	progress, _ := q.GetProgress(ctx, job.ID)
	if progress == nil {
		progress = &JobProgress{JobID: job.ID, DocumentID: job.DocumentID}
	}
	progress.Status = JobPending
	progress.Attempts = job.Attempts
	progress.Errors = append(progress.Errors, errorMsg)
	_ = q.UpdateProgress(ctx, progress)

	return nil
}

func (q *Queue) UpdateProgress(ctx context.Context, progress *JobProgress) error {
	progress.UpdatedAt = q.now()
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshaling progress: %w", err)
	}

	key := JobProgressPrefix + progress.JobID.String()
	if err := q.client.Set(ctx, key, string(data), progressTTL).Err(); err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}

	return nil
}

func (q *Queue) GetProgress(ctx context.Context, jobID uuid.UUID) (*JobProgress, error) {
	key := JobProgressPrefix + jobID.String()
	data, err := q.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting progress: %w", err)
	}

	var progress JobProgress
	if err := json.Unmarshal([]byte(data), &progress); err != nil {
		return nil, fmt.Errorf("unmarshaling progress: %w", err)
	}

	return &progress, nil
}

func (q *Queue) GetQueueStats(ctx context.Context) (map[string]int64, error) {
	pipe := q.client.Pipeline()
	pending := pipe.ZCard(ctx, DocumentJobsQueue)
	processing := pipe.SCard(ctx, DocumentJobsProcessing)
	completed := pipe.SCard(ctx, DocumentJobsCompleted)
	failed := pipe.SCard(ctx, DocumentJobsFailed)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("reading queue stats: %w", err)
	}

	return map[string]int64{
		"pending":    pending.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}

func (q *Queue) WorkerHeartbeat(ctx context.Context, workerID string) error {
	return q.client.HSet(ctx, WorkerHeartbeatKey, workerID, q.now().Unix()).Err()
}

func (q *Queue) GetActiveWorkers(ctx context.Context, timeout time.Duration) ([]string, error) {
	workers, err := q.client.HGetAll(ctx, WorkerHeartbeatKey).Result()
	if err != nil {
		return nil, fmt.Errorf("getting workers: %w", err)
	}

	var active []string
	cutoff := q.now().Add(-timeout).Unix()

	for workerID, lastSeen := range workers {
		var ts int64
		_, _ = fmt.Sscanf(lastSeen, "%d", &ts)
		if ts > cutoff {
			active = append(active, workerID)
		}
	}

	return active, nil
}

// CleanupStaleJobs returns jobs whose progress has not moved for timeout
// to the queue, or fails them once they are out of attempts.
func (q *Queue) CleanupStaleJobs(ctx context.Context, timeout time.Duration) (int, error) {
	jobs, err := q.client.SMembers(ctx, DocumentJobsProcessing).Result()
	if err != nil {
		return 0, fmt.Errorf("getting processing jobs: %w", err)
	}

	cleaned := 0
	for _, jobData := range jobs {
		var job Job
		if err := json.Unmarshal([]byte(jobData), &job); err != nil {
			continue
		}

		progress, err := q.GetProgress(ctx, job.ID)
		if err != nil || progress == nil {
			continue
		}

		if q.now().Sub(progress.UpdatedAt) > timeout {
			if err := q.RequeueJob(ctx, &job, "worker timed out"); err != nil {
				return cleaned, err
			}
			cleaned++
		}
	}

	return cleaned, nil
}
