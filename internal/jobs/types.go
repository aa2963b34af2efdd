// Package jobs defines background write jobs. Stores that apply a change
// locally before persisting it hand the remote write to a queue so the caller
// returns immediately and writes reach the backend in submission order.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is reported by jobs published after the queue stopped.
var ErrQueueClosed = errors.New("queue is closed")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeSettingsWrite persists a settings patch.
	JobTypeSettingsWrite JobType = "settings_write"
	// JobTypeBackup exports a snapshot to object storage.
	JobTypeBackup JobType = "backup"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// WriteFunc performs the remote write of a job.
type WriteFunc func(ctx context.Context) error

// WriteJob is one deferred backend write.
type WriteJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Type is the kind of write.
	Type JobType `json:"type"`

	// Entity names what is written, e.g. "settings" or a goal id.
	Entity string `json:"entity"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	write WriteFunc
	once  sync.Once
	done  chan struct{}
	err   error
}

// NewWriteJob creates a pending job that runs write when processed.
func NewWriteJob(t JobType, entity string, write WriteFunc) *WriteJob {
	return &WriteJob{
		JobID:     uuid.NewString(),
		Type:      t,
		Entity:    entity,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
		write:     write,
		done:      make(chan struct{}),
	}
}

// Finished returns a job that is already done with err, for changes that
// needed no write or could not be queued.
func Finished(t JobType, entity string, err error) *WriteJob {
	j := NewWriteJob(t, entity, nil)
	now := time.Now()
	j.CompletedAt = &now
	j.Status = JobStatusCompleted
	if err != nil {
		j.Status = JobStatusFailed
		j.Error = err.Error()
	}
	j.Finish(err)
	return j
}

// Run performs the write once.
func (j *WriteJob) Run(ctx context.Context) error {
	if j.write == nil {
		return nil
	}
	return j.write(ctx)
}

// Finish records the final outcome and releases waiters. Only the first call
// has an effect.
func (j *WriteJob) Finish(err error) {
	j.once.Do(func() {
		j.err = err
		close(j.done)
	})
}

// Done is closed once the job has finished.
func (j *WriteJob) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns its final error.
func (j *WriteJob) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the job's bookkeeping fields without its write
// function, suitable for storing.
func (j *WriteJob) Snapshot() *WriteJob {
	return &WriteJob{
		JobID:       j.JobID,
		Type:        j.Type,
		Entity:      j.Entity,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Error:       j.Error,
		RetryCount:  j.RetryCount,
		MaxRetries:  j.MaxRetries,
	}
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// Publish enqueues a write job.
	Publish(ctx context.Context, job *WriteJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for queued jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job *WriteJob) error

// RunWrite is the handler that performs a job's own write.
func RunWrite(ctx context.Context, job *WriteJob) error {
	return job.Run(ctx)
}

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *WriteJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*WriteJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*WriteJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Entity filters jobs by the entity they write.
	Entity string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
