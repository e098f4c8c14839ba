package deck

import (
	"context"
	"io"
	"time"
)

// JobState captures export job states.
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Terminal reports whether the job can no longer change.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobRecord captures tracker state for an export job.
type JobRecord struct {
	ID             string     `json:"jobId"`
	PresentationID string     `json:"presentationId"`
	Title          string     `json:"title,omitempty"`
	State          JobState   `json:"status"`
	Progress       int        `json:"progress"`
	Pages          int        `json:"pages,omitempty"`
	Skipped        []int      `json:"skipped,omitempty"`
	Filename       string     `json:"filename,omitempty"`
	ArtifactKey    string     `json:"-"`
	DownloadURL    string     `json:"downloadUrl,omitempty"`
	Error          string     `json:"error,omitempty"`
	ErrorKind      ErrorKind  `json:"errorKind,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// JobFilter filters tracker lists.
type JobFilter struct {
	PresentationID string
	State          JobState
	Since          time.Time
	Until          time.Time
}

// JobTracker stores export job state.
type JobTracker interface {
	Start(ctx context.Context, record JobRecord) (string, error)
	SetProgress(ctx context.Context, id string, progress int) error
	SetState(ctx context.Context, id string, state JobState) error
	Complete(ctx context.Context, id string, result JobResult) error
	Fail(ctx context.Context, id string, err error) error
	Status(ctx context.Context, id string) (JobRecord, error)
	List(ctx context.Context, filter JobFilter) ([]JobRecord, error)
	Delete(ctx context.Context, id string) error
}

// JobResult is recorded when a job completes.
type JobResult struct {
	Pages       int
	Skipped     []int
	Filename    string
	ArtifactKey string
	DownloadURL string
}

// ArtifactMeta describes a stored document.
type ArtifactMeta struct {
	ContentType string    `json:"content_type"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactRef references a stored document.
type ArtifactRef struct {
	Key  string
	Meta ArtifactMeta
}

// ArtifactStore persists finished documents for the lifetime of the process.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error)
	Delete(ctx context.Context, key string) error
}

// SurfaceOpener mounts a slide surface for a viewer URL.
type SurfaceOpener interface {
	Open(ctx context.Context, url string) (Surface, error)
}

// SurfaceOpenerFunc adapts a function to a SurfaceOpener.
type SurfaceOpenerFunc func(ctx context.Context, url string) (Surface, error)

func (f SurfaceOpenerFunc) Open(ctx context.Context, url string) (Surface, error) {
	if f == nil {
		return nil, NewError(KindInternal, "surface opener is nil", nil)
	}
	return f(ctx, url)
}
