package deck

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAge is how long finished jobs are kept before Cleanup removes them.
const DefaultMaxAge = 24 * time.Hour

// ServiceConfig supplies dependencies for Service.
type ServiceConfig struct {
	Catalog  *Catalog
	Exporter *Exporter
	Opener   SurfaceOpener
	Tracker  JobTracker
	Store    ArtifactStore
	Logger   Logger
	Scale    float64
	MaxAge   time.Duration
	// Dispatch runs a job body. Defaults to a new goroutine.
	Dispatch    func(fn func())
	Now         func() time.Time
	IDGenerator func() string
}

// Service runs export jobs for catalog presentations.
type Service struct {
	catalog  *Catalog
	exporter *Exporter
	opener   SurfaceOpener
	tracker  JobTracker
	store    ArtifactStore
	logger   Logger
	scale    float64
	maxAge   time.Duration
	dispatch func(fn func())
	now      func() time.Time
	nextID   func() string
}

// NewService creates a Service with the provided configuration.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		catalog:  cfg.Catalog,
		exporter: cfg.Exporter,
		opener:   cfg.Opener,
		tracker:  cfg.Tracker,
		store:    cfg.Store,
		logger:   cfg.Logger,
		scale:    cfg.Scale,
		maxAge:   cfg.MaxAge,
		dispatch: cfg.Dispatch,
		now:      cfg.Now,
		nextID:   cfg.IDGenerator,
	}
	if s.catalog == nil {
		s.catalog = NewCatalog("")
	}
	if s.tracker == nil {
		s.tracker = NewMemoryTracker()
	}
	if s.store == nil {
		s.store = NewMemoryStore()
	}
	if s.logger == nil {
		s.logger = NopLogger{}
	}
	if s.scale <= 0 {
		s.scale = DefaultScale
	}
	if s.maxAge <= 0 {
		s.maxAge = DefaultMaxAge
	}
	if s.dispatch == nil {
		s.dispatch = func(fn func()) { go fn() }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.nextID == nil {
		s.nextID = NewJobID
	}
	return s
}

// NewJobID returns an id of the form export_<12 hex>.
func NewJobID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "export_" + raw[:12]
}

// DownloadPath returns the API path of a job's document.
func DownloadPath(jobID string) string {
	return "/api/exports/" + jobID + "/download"
}

// ArtifactKey returns the store key of a job's document.
func ArtifactKey(jobID string) string {
	return jobID + ".pdf"
}

// Catalog returns the presentation catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// StartExport creates a pending job for a presentation and dispatches it.
func (s *Service) StartExport(ctx context.Context, presentationID string) (JobRecord, error) {
	if s == nil {
		return JobRecord{}, NewError(KindInternal, "service is nil", nil)
	}
	if s.exporter == nil || s.opener == nil {
		return JobRecord{}, NewError(KindInternal, "export pipeline is not configured", nil)
	}
	p, err := s.catalog.Get(presentationID)
	if err != nil {
		return JobRecord{}, err
	}

	record := JobRecord{
		ID:             s.nextID(),
		PresentationID: p.ID,
		Title:          p.Title,
		State:          JobPending,
		CreatedAt:      s.now(),
	}
	id, err := s.tracker.Start(ctx, record)
	if err != nil {
		return JobRecord{}, err
	}
	record.ID = id

	// the job outlives the request that created it
	jobCtx := context.WithoutCancel(ctx)
	s.dispatch(func() { s.run(jobCtx, id, p) })

	s.logger.Infof("queued export %s for presentation %s", id, p.ID)
	return record, nil
}

func (s *Service) run(ctx context.Context, id string, p Presentation) {
	if err := s.tracker.SetState(ctx, id, JobProcessing); err != nil {
		s.logger.Errorf("export %s: failed to mark processing: %v", id, err)
	}

	surface, err := s.opener.Open(ctx, p.URL)
	if err != nil {
		s.failJob(ctx, id, NewError(KindCaptureFailure, fmt.Sprintf("failed to open %s", p.URL), err))
		return
	}
	if closer, ok := surface.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				s.logger.Debugf("export %s: close surface: %v", id, err)
			}
		}()
	}

	var buf bytes.Buffer
	result, err := s.exporter.Export(ctx, surface, ExportOptions{
		Title:       p.Title,
		TotalSlides: p.SlideCount,
		Scale:       s.scale,
		Output:      &buf,
		OnProgress: func(percent int) {
			if percent <= 0 {
				return
			}
			if err := s.tracker.SetProgress(ctx, id, percent); err != nil {
				s.logger.Debugf("export %s: progress update: %v", id, err)
			}
		},
	})
	if err != nil {
		s.failJob(ctx, id, err)
		return
	}

	key := ArtifactKey(id)
	if _, err := s.store.Put(ctx, key, &buf, ArtifactMeta{
		ContentType: pdfContentType,
		Filename:    result.Filename,
		CreatedAt:   s.now(),
	}); err != nil {
		s.failJob(ctx, id, NewError(KindSerialization, "failed to store document", err))
		return
	}

	if err := s.tracker.Complete(ctx, id, JobResult{
		Pages:       result.Pages,
		Skipped:     result.Skipped,
		Filename:    result.Filename,
		ArtifactKey: key,
		DownloadURL: DownloadPath(id),
	}); err != nil {
		s.logger.Errorf("export %s: failed to mark completed: %v", id, err)
	}
}

func (s *Service) failJob(ctx context.Context, id string, err error) {
	s.logger.Errorf("export %s failed: %v", id, err)
	if trackErr := s.tracker.Fail(ctx, id, err); trackErr != nil {
		s.logger.Errorf("export %s: failed to record failure: %v", id, trackErr)
	}
}

// Status returns the job record.
func (s *Service) Status(ctx context.Context, jobID string) (JobRecord, error) {
	if s == nil {
		return JobRecord{}, NewError(KindInternal, "service is nil", nil)
	}
	if jobID == "" {
		return JobRecord{}, NewError(KindInvalidInput, "job id is required", nil)
	}
	return s.tracker.Status(ctx, jobID)
}

// Download opens the document of a completed job.
func (s *Service) Download(ctx context.Context, jobID string) (io.ReadCloser, ArtifactMeta, error) {
	record, err := s.Status(ctx, jobID)
	if err != nil {
		return nil, ArtifactMeta{}, err
	}
	switch record.State {
	case JobCompleted:
	case JobFailed:
		return nil, ArtifactMeta{}, NewError(KindNotReady, fmt.Sprintf("export %s failed: %s", jobID, record.Error), nil)
	default:
		return nil, ArtifactMeta{}, NewError(KindNotReady, fmt.Sprintf("export %s is %s", jobID, record.State), nil)
	}

	key := record.ArtifactKey
	if key == "" {
		key = ArtifactKey(jobID)
	}
	reader, meta, err := s.store.Open(ctx, key)
	if err != nil {
		return nil, ArtifactMeta{}, err
	}
	if meta.Filename == "" {
		meta.Filename = record.Filename
	}
	return reader, meta, nil
}

// List returns jobs matching the filter.
func (s *Service) List(ctx context.Context, filter JobFilter) ([]JobRecord, error) {
	if s == nil {
		return nil, NewError(KindInternal, "service is nil", nil)
	}
	return s.tracker.List(ctx, filter)
}

// Cleanup deletes finished jobs older than the max age along with their documents.
func (s *Service) Cleanup(ctx context.Context, now time.Time) (int, error) {
	if s == nil {
		return 0, NewError(KindInternal, "service is nil", nil)
	}
	if now.IsZero() {
		now = s.now()
	}
	cutoff := now.Add(-s.maxAge)

	records, err := s.tracker.List(ctx, JobFilter{})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, record := range records {
		if !record.State.Terminal() || record.CompletedAt == nil || record.CompletedAt.After(cutoff) {
			continue
		}
		if record.State == JobCompleted {
			key := record.ArtifactKey
			if key == "" {
				key = ArtifactKey(record.ID)
			}
			if err := s.store.Delete(ctx, key); err != nil {
				return deleted, err
			}
		}
		if err := s.tracker.Delete(ctx, record.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	if deleted > 0 {
		s.logger.Infof("cleanup removed %d export job(s)", deleted)
	}
	return deleted, nil
}
