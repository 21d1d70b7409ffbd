package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by JobStore.GetJob for an unknown id.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to or starting a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed. Failed runs are not retried.
	JobStatusFailed JobStatus = "failed"
)

// SegmentationJob asks a worker to run one segmentation.
type SegmentationJob struct {
	JobID string `json:"job_id"`

	// InputPath overrides the configured input workbook when set.
	InputPath string `json:"input_path,omitempty"`

	// Sheets overrides the configured sheet selection when set.
	Sheets []string `json:"sheets,omitempty"`

	Status JobStatus `json:"status"`

	// RunID and Customers are filled in by a successful run.
	RunID     string `json:"run_id,omitempty"`
	Customers int    `json:"customers,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error string `json:"error,omitempty"`
}

// Publisher enqueues segmentation jobs.
type Publisher interface {
	// PublishSegmentation assigns an id if missing, records the job as pending and enqueues it.
	PublishSegmentation(ctx context.Context, job *SegmentationJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. It may set RunID and Customers on the job;
// a returned error marks the job failed.
type JobHandler func(ctx context.Context, job *SegmentationJob) error

// JobStore keeps job state for the API.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *SegmentationJob) error

	// GetJob retrieves a job by ID or returns ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*SegmentationJob, error)

	// ListJobs returns jobs newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*SegmentationJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
