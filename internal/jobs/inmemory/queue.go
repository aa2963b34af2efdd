package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/twocents/internal/jobs"
	"github.com/dvloznov/twocents/internal/logger"
)

// DefaultMaxRetries is used when a queue is configured without a retry count.
const DefaultMaxRetries = 3

// QueueConfig tunes a Queue.
type QueueConfig struct {
	// BufferSize is how many jobs can wait before Publish blocks.
	BufferSize int
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Backoff is multiplied by the retry number before each retry.
	Backoff time.Duration
}

// Queue is an in-memory implementation of job publisher and consumer.
// A single worker processes jobs in publish order and retries a failing job
// before moving on, so a later write never lands before an earlier one.
type Queue struct {
	jobChan   chan *jobs.WriteJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	maxRetries int
	backoff    time.Duration
}

// NewQueue creates a new in-memory job queue. store may be nil.
func NewQueue(cfg QueueConfig, store jobs.JobStore) *Queue {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Queue{
		jobChan:    make(chan *jobs.WriteJob, cfg.BufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
	}
}

// Publish implements the Publisher interface.
// It enqueues a write job for asynchronous processing. A job published to a
// closed queue is finished with jobs.ErrQueueClosed.
func (q *Queue) Publish(ctx context.Context, job *jobs.WriteJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		job.Finish(jobs.ErrQueueClosed)
		return jobs.ErrQueueClosed
	}

	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.maxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		job.Finish(ctx.Err())
		return ctx.Err()
	case <-q.closeChan:
		job.Finish(jobs.ErrQueueClosed)
		return jobs.ErrQueueClosed
	}
}

// Start implements the Consumer interface.
// It starts the single worker that processes jobs with handler.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	q.wg.Add(1)
	go q.worker(ctx, handler)

	return nil
}

// worker processes jobs from the queue. After Stop it drains what is already
// queued; when ctx ends it abandons the rest.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			q.abandon(ctx.Err())
			return
		case <-q.closeChan:
			q.drain(ctx, handler)
			return
		case job := <-q.jobChan:
			q.processJob(ctx, job, handler)
		}
	}
}

func (q *Queue) drain(ctx context.Context, handler jobs.JobHandler) {
	for {
		select {
		case job := <-q.jobChan:
			q.processJob(ctx, job, handler)
		default:
			return
		}
	}
}

func (q *Queue) abandon(err error) {
	for {
		select {
		case job := <-q.jobChan:
			job.Status = jobs.JobStatusFailed
			job.Error = err.Error()
			job.Finish(err)
		default:
			return
		}
	}
}

// processJob executes a single job, retrying in place with linear backoff.
func (q *Queue) processJob(ctx context.Context, job *jobs.WriteJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("job_type", string(job.Type)).
		Str("entity", job.Entity).
		Logger()

	for {
		job.Status = jobs.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
		job.CompletedAt = nil
		q.save(ctx, job)

		err := handler(ctx, job)

		completedAt := time.Now()
		job.CompletedAt = &completedAt

		if err == nil {
			job.Status = jobs.JobStatusCompleted
			job.Error = ""
			q.save(ctx, job)
			log.Debug().Int("retries", job.RetryCount).Msg("Write job completed")
			job.Finish(nil)
			return
		}

		job.Error = err.Error()

		if job.RetryCount >= job.MaxRetries {
			job.Status = jobs.JobStatusFailed
			q.save(ctx, job)
			log.Error().Err(err).Int("retries", job.RetryCount).Msg("Write job failed")
			job.Finish(err)
			return
		}

		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		q.save(ctx, job)
		log.Warn().Err(err).Int("attempt", job.RetryCount).Msg("Write job failed, retrying")

		backoff := time.Duration(job.RetryCount) * q.backoff
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			job.Status = jobs.JobStatusFailed
			q.save(ctx, job)
			job.Finish(err)
			return
		}
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.WriteJob) {
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// Stop implements the Consumer interface.
// It closes the queue and waits for the worker to finish queued jobs.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
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

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
