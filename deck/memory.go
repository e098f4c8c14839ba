package deck

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps finished documents in process memory. Keys follow
// ArtifactKey and must name a PDF.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]storedDocument
	now  func() time.Time
}

type storedDocument struct {
	pdf  []byte
	meta ArtifactMeta
}

var _ ArtifactStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]storedDocument), now: time.Now}
}

// Put buffers the document under key. The content type defaults to
// application/pdf and the download name to the key itself.
func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error) {
	if err := checkDocumentKey(key); err != nil {
		return ArtifactRef{}, err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return ArtifactRef{}, NewError(KindSerialization, "failed to buffer document", err)
	}
	if err := ctx.Err(); err != nil {
		return ArtifactRef{}, err
	}

	meta.Size = int64(buf.Len())
	if meta.ContentType == "" {
		meta.ContentType = pdfContentType
	}
	if meta.Filename == "" {
		meta.Filename = path.Base(key)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}

	s.mu.Lock()
	s.docs[key] = storedDocument{pdf: buf.Bytes(), meta: meta}
	s.mu.Unlock()

	return ArtifactRef{Key: key, Meta: meta}, nil
}

// Open returns a reader over a stored document.
func (s *MemoryStore) Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, ArtifactMeta{}, err
	}
	s.mu.RLock()
	doc, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ArtifactMeta{}, NewError(KindNotFound, fmt.Sprintf("document %q not found", key), nil)
	}
	return io.NopCloser(bytes.NewReader(doc.pdf)), doc.meta, nil
}

// Delete drops a document. Unknown keys are ignored so cleanup can retry.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	delete(s.docs, key)
	s.mu.Unlock()
	return nil
}

func checkDocumentKey(key string) error {
	if key == "" {
		return NewError(KindInvalidInput, "artifact key is required", nil)
	}
	if !strings.HasSuffix(key, pdfExtension) || path.Base(key) == pdfExtension {
		return NewError(KindInvalidInput, fmt.Sprintf("artifact key %q must name a PDF", key), nil)
	}
	return nil
}

// MemoryTracker stores job state in memory.
type MemoryTracker struct {
	mu      sync.RWMutex
	records map[string]JobRecord
	now     func() time.Time
}

// NewMemoryTracker creates an in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{records: make(map[string]JobRecord), now: time.Now}
}

// Start creates a new record.
func (t *MemoryTracker) Start(ctx context.Context, record JobRecord) (string, error) {
	_ = ctx
	if record.ID == "" {
		record.ID = NewJobID()
	}
	if record.State == "" {
		record.State = JobPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.now()
	}

	t.mu.Lock()
	t.records[record.ID] = record
	t.mu.Unlock()
	return record.ID, nil
}

// SetProgress stores the latest progress value.
func (t *MemoryTracker) SetProgress(ctx context.Context, id string, progress int) error {
	_ = ctx
	return t.update(id, func(record *JobRecord) {
		record.Progress = progress
	})
}

// SetState updates the record state.
func (t *MemoryTracker) SetState(ctx context.Context, id string, state JobState) error {
	_ = ctx
	return t.update(id, func(record *JobRecord) {
		record.State = state
		if state == JobProcessing && record.StartedAt == nil {
			now := t.now()
			record.StartedAt = &now
		}
	})
}

// Complete marks the job as completed.
func (t *MemoryTracker) Complete(ctx context.Context, id string, result JobResult) error {
	_ = ctx
	return t.update(id, func(record *JobRecord) {
		now := t.now()
		record.State = JobCompleted
		record.Progress = 100
		record.Pages = result.Pages
		record.Skipped = append([]int(nil), result.Skipped...)
		record.Filename = result.Filename
		record.ArtifactKey = result.ArtifactKey
		record.DownloadURL = result.DownloadURL
		record.CompletedAt = &now
	})
}

// Fail records failure state.
func (t *MemoryTracker) Fail(ctx context.Context, id string, err error) error {
	_ = ctx
	return t.update(id, func(record *JobRecord) {
		now := t.now()
		record.State = JobFailed
		record.Progress = 0
		if err != nil {
			record.Error = err.Error()
			record.ErrorKind = KindFromError(err)
		}
		record.CompletedAt = &now
	})
}

// Status returns a record by ID.
func (t *MemoryTracker) Status(ctx context.Context, id string) (JobRecord, error) {
	_ = ctx
	t.mu.RLock()
	record, ok := t.records[id]
	t.mu.RUnlock()
	if !ok {
		return JobRecord{}, NewError(KindNotFound, fmt.Sprintf("export job %q not found", id), nil)
	}
	return record, nil
}

// List returns records matching a filter, newest first.
func (t *MemoryTracker) List(ctx context.Context, filter JobFilter) ([]JobRecord, error) {
	_ = ctx
	result := []JobRecord{}

	t.mu.RLock()
	for _, record := range t.records {
		if filter.PresentationID != "" && record.PresentationID != filter.PresentationID {
			continue
		}
		if filter.State != "" && record.State != filter.State {
			continue
		}
		if !filter.Since.IsZero() && record.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && record.CreatedAt.After(filter.Until) {
			continue
		}
		result = append(result, record)
	}
	t.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// Delete removes a record.
func (t *MemoryTracker) Delete(ctx context.Context, id string) error {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[id]; !ok {
		return NewError(KindNotFound, fmt.Sprintf("export job %q not found", id), nil)
	}
	delete(t.records, id)
	return nil
}

func (t *MemoryTracker) update(id string, fn func(record *JobRecord)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	record, ok := t.records[id]
	if !ok {
		return NewError(KindNotFound, fmt.Sprintf("export job %q not found", id), nil)
	}
	fn(&record)
	t.records[id] = record
	return nil
}
