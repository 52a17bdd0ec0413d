package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/dvloznov/ledger-assistant/internal/domain"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeMirror copies the ledger to an external target.
	JobTypeMirror JobType = "mirror"
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

// Target names an external copy of the ledger.
type Target string

const (
	TargetGCS      Target = "gcs"
	TargetBigQuery Target = "bigquery"
	TargetNotion   Target = "notion"
)

// Targets lists every known mirror target.
var Targets = []Target{TargetGCS, TargetBigQuery, TargetNotion}

// ParseTarget validates a target name.
func ParseTarget(s string) (Target, error) {
	t := Target(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Targets {
		if t == known {
			return t, nil
		}
	}
	return "", domain.E(domain.KindValidation, "ParseTarget", "invalid target %q: must be one of gcs, bigquery, notion", s)
}

// MirrorJob copies a snapshot of the ledger to one target.
type MirrorJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Target is where the snapshot goes.
	Target Target `json:"target"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Result describes what the mirror produced, e.g. an object URI.
	Result string `json:"result,omitempty"`

	// Rows is the number of transactions in the mirrored snapshot.
	Rows int `json:"rows"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *MirrorJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *MirrorJob) GetType() JobType {
	return JobTypeMirror
}

// GetStatus implements the Job interface.
func (j *MirrorJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishMirror enqueues a mirror job.
	PublishMirror(ctx context.Context, job *MirrorJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the attempt failed and
// may trigger a retry.
type JobHandler func(ctx context.Context, job *MirrorJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *MirrorJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*MirrorJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*MirrorJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Target Target
	Status JobStatus
	Limit  int
	Offset int
}
