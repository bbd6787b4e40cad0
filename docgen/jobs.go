package docgen

import (
	"context"
	"errors"
	"sync"
	"time"

	"scribe/core"
	"scribe/metrics"
	"scribe/storage"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when the job queue cannot accept more work.
var ErrQueueFull = errors.New("job queue is full")

// Job is one background documentation generation request.
type Job struct {
	DocID  string
	RepoID string
	URL    string
	Model  core.LLMModel
}

// Generator is the slice of Service the workers need.
type Generator interface {
	GenerateForFile(ctx context.Context, blobURL string, model core.LLMModel) (string, *core.GitHubFile, error)
}

// JobQueue runs documentation generation jobs on a fixed worker pool.
// Job outcomes are written back to doc storage; when a job belongs to
// a repository, the repo tree node is updated as well.
type JobQueue struct {
	generator Generator
	docs      storage.DocStorageInterface
	repos     storage.RepoStorageInterface
	jobs      chan Job
	timeout   time.Duration
	workers   int
	wg        sync.WaitGroup
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewJobQueue creates a job queue. repos may be nil when tree updates
// are not wanted.
func NewJobQueue(generator Generator, docs storage.DocStorageInterface, repos storage.RepoStorageInterface,
	workers, queueSize int, timeout time.Duration, logger *zap.SugaredLogger) *JobQueue {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &JobQueue{
		generator: generator,
		docs:      docs,
		repos:     repos,
		jobs:      make(chan Job, queueSize),
		timeout:   timeout,
		workers:   workers,
		logger:    logger,
	}
}

// Start launches the worker pool.
func (q *JobQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.logger.Infow("Job queue started", "workers", q.workers, "queue_size", cap(q.jobs))
}

// Enqueue adds a job without blocking. Returns ErrQueueFull when the
// queue has no room.
func (q *JobQueue) Enqueue(job Job) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return errors.New("job queue is stopped")
	}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		metrics.DocJobsEnqueued.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight jobs, bounded by ctx.
func (q *JobQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *JobQueue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(job)
	}
}

func (q *JobQueue) run(job Job) {
	start := time.Now()
	defer func() {
		metrics.DocJobDuration.Observe(time.Since(start).Seconds())
	}()

	ctx := context.Background()
	var cancel context.CancelFunc
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	markdown, _, err := q.generator.GenerateForFile(ctx, job.URL, job.Model)
	if err != nil {
		q.fail(job, err)
		return
	}

	if err := q.docs.SetDocResult(job.DocID, core.DocStatusCompleted, markdown, ""); err != nil {
		q.logger.Errorw("Failed to persist completed doc", "doc_id", job.DocID, "error", err)
		metrics.DocJobsCompleted.WithLabelValues("error").Inc()
		return
	}
	q.setTreeStatus(job, core.DocStatusCompleted)

	metrics.DocJobsCompleted.WithLabelValues("completed").Inc()
	q.logger.Infow("Doc job completed", "doc_id", job.DocID, "url", job.URL)
}

func (q *JobQueue) fail(job Job, genErr error) {
	msg := genErr.Error()
	if len(msg) > core.MaxErrorMessageLength {
		msg = msg[:core.MaxErrorMessageLength]
	}

	if err := q.docs.SetDocResult(job.DocID, core.DocStatusFailed, "", msg); err != nil {
		q.logger.Errorw("Failed to persist failed doc", "doc_id", job.DocID, "error", err)
	}
	q.setTreeStatus(job, core.DocStatusFailed)

	metrics.DocJobsCompleted.WithLabelValues("failed").Inc()
	q.logger.Warnw("Doc job failed", "doc_id", job.DocID, "url", job.URL, "error", genErr)
}

func (q *JobQueue) setTreeStatus(job Job, status core.DocStatus) {
	if q.repos == nil || job.RepoID == "" {
		return
	}
	if err := q.repos.SetTreeNodeStatus(job.RepoID, job.DocID, status); err != nil {
		q.logger.Warnw("Failed to update tree node", "repo_id", job.RepoID, "doc_id", job.DocID, "error", err)
	}
}
