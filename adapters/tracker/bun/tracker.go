package trackerbun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-deck-export/deck"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// MemoryDSN keeps jobs in a process-local SQLite database.
const MemoryDSN = "file:deck_jobs?mode=memory&cache=shared"

// Tracker stores export jobs in a Bun-backed database.
type Tracker struct {
	DB  *bun.DB
	Now func() time.Time
}

var _ deck.JobTracker = (*Tracker)(nil)

// NewTracker creates a Bun-backed tracker.
func NewTracker(db *bun.DB) *Tracker {
	return &Tracker{DB: db, Now: time.Now}
}

// OpenSQLite opens dsn through sqliteshim and ensures the jobs table exists.
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	// in-memory databases live only as long as one connection keeps them open
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := CreateSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// CreateSchema creates the jobs table when missing.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*jobModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Start inserts a new job.
func (t *Tracker) Start(ctx context.Context, record deck.JobRecord) (string, error) {
	if err := t.ready(); err != nil {
		return "", err
	}
	if record.ID == "" {
		record.ID = deck.NewJobID()
	}
	if record.State == "" {
		record.State = deck.JobPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.now()
	}

	model, err := modelFromRecord(record)
	if err != nil {
		return "", err
	}
	if _, err := t.DB.NewInsert().Model(&model).Exec(ctx); err != nil {
		return "", err
	}
	return record.ID, nil
}

// SetProgress stores the latest progress value.
func (t *Tracker) SetProgress(ctx context.Context, id string, progress int) error {
	return t.update(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("progress = ?", progress)
	})
}

// SetState updates the job state.
func (t *Tracker) SetState(ctx context.Context, id string, state deck.JobState) error {
	return t.update(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		q = q.Set("state = ?", string(state))
		if state == deck.JobProcessing {
			q = q.Set("started_at = COALESCE(started_at, ?)", t.now())
		}
		return q
	})
}

// Complete marks the job as completed with its document details.
func (t *Tracker) Complete(ctx context.Context, id string, result deck.JobResult) error {
	skipped, err := json.Marshal(result.Skipped)
	if err != nil {
		return err
	}
	return t.update(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("state = ?", string(deck.JobCompleted)).
			Set("progress = 100").
			Set("pages = ?", result.Pages).
			Set("skipped = ?", string(skipped)).
			Set("filename = ?", result.Filename).
			Set("artifact_key = ?", result.ArtifactKey).
			Set("download_url = ?", result.DownloadURL).
			Set("completed_at = COALESCE(completed_at, ?)", t.now())
	})
}

// Fail marks the job as failed and records the error.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	kind := ""
	if cause != nil {
		msg = cause.Error()
		kind = string(deck.KindFromError(cause))
	}
	return t.update(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("state = ?", string(deck.JobFailed)).
			Set("progress = 0").
			Set("error = ?", msg).
			Set("error_kind = ?", kind).
			Set("completed_at = COALESCE(completed_at, ?)", t.now())
	})
}

// Status returns a job by id.
func (t *Tracker) Status(ctx context.Context, id string) (deck.JobRecord, error) {
	if err := t.ready(); err != nil {
		return deck.JobRecord{}, err
	}
	if id == "" {
		return deck.JobRecord{}, deck.NewError(deck.KindInvalidInput, "job id is required", nil)
	}

	model := new(jobModel)
	err := t.DB.NewSelect().Model(model).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return deck.JobRecord{}, deck.NewError(deck.KindNotFound, fmt.Sprintf("export job %q not found", id), nil)
		}
		return deck.JobRecord{}, err
	}
	return model.toRecord()
}

// List returns jobs matching a filter, newest first.
func (t *Tracker) List(ctx context.Context, filter deck.JobFilter) ([]deck.JobRecord, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}

	models := make([]jobModel, 0)
	query := t.DB.NewSelect().Model(&models)
	if filter.PresentationID != "" {
		query = query.Where("presentation_id = ?", filter.PresentationID)
	}
	if filter.State != "" {
		query = query.Where("state = ?", string(filter.State))
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at <= ?", filter.Until)
	}
	query = query.Order("created_at DESC")

	if err := query.Scan(ctx); err != nil {
		return nil, err
	}

	records := make([]deck.JobRecord, 0, len(models))
	for _, model := range models {
		record, err := model.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes a job.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if id == "" {
		return deck.NewError(deck.KindInvalidInput, "job id is required", nil)
	}
	res, err := t.DB.NewDelete().Model((*jobModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, id)
}

func (t *Tracker) update(ctx context.Context, id string, apply func(q *bun.UpdateQuery) *bun.UpdateQuery) error {
	if err := t.ready(); err != nil {
		return err
	}
	if id == "" {
		return deck.NewError(deck.KindInvalidInput, "job id is required", nil)
	}
	query := apply(t.DB.NewUpdate().Model((*jobModel)(nil))).Where("id = ?", id)
	res, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, id)
}

func (t *Tracker) ready() error {
	if t == nil || t.DB == nil {
		return deck.NewError(deck.KindInternal, "tracker database not configured", nil)
	}
	return nil
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func requireAffected(res sql.Result, id string) error {
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return deck.NewError(deck.KindNotFound, fmt.Sprintf("export job %q not found", id), nil)
	}
	return nil
}

type jobModel struct {
	bun.BaseModel `bun:"table:deck_export_jobs,alias:j"`

	ID             string    `bun:",pk"`
	PresentationID string    `bun:"presentation_id,notnull"`
	Title          string    `bun:"title"`
	State          string    `bun:"state,notnull"`
	Progress       int       `bun:"progress"`
	Pages          int       `bun:"pages"`
	Skipped        string    `bun:"skipped"`
	Filename       string    `bun:"filename"`
	ArtifactKey    string    `bun:"artifact_key"`
	DownloadURL    string    `bun:"download_url"`
	Error          string    `bun:"error"`
	ErrorKind      string    `bun:"error_kind"`
	CreatedAt      time.Time `bun:"created_at"`
	StartedAt      time.Time `bun:"started_at,nullzero"`
	CompletedAt    time.Time `bun:"completed_at,nullzero"`
}

func modelFromRecord(record deck.JobRecord) (jobModel, error) {
	skipped, err := json.Marshal(record.Skipped)
	if err != nil {
		return jobModel{}, err
	}
	model := jobModel{
		ID:             record.ID,
		PresentationID: record.PresentationID,
		Title:          record.Title,
		State:          string(record.State),
		Progress:       record.Progress,
		Pages:          record.Pages,
		Skipped:        string(skipped),
		Filename:       record.Filename,
		ArtifactKey:    record.ArtifactKey,
		DownloadURL:    record.DownloadURL,
		Error:          record.Error,
		ErrorKind:      string(record.ErrorKind),
		CreatedAt:      record.CreatedAt,
	}
	if record.StartedAt != nil {
		model.StartedAt = *record.StartedAt
	}
	if record.CompletedAt != nil {
		model.CompletedAt = *record.CompletedAt
	}
	return model, nil
}

func (m jobModel) toRecord() (deck.JobRecord, error) {
	record := deck.JobRecord{
		ID:             m.ID,
		PresentationID: m.PresentationID,
		Title:          m.Title,
		State:          deck.JobState(m.State),
		Progress:       m.Progress,
		Pages:          m.Pages,
		Filename:       m.Filename,
		ArtifactKey:    m.ArtifactKey,
		DownloadURL:    m.DownloadURL,
		Error:          m.Error,
		ErrorKind:      deck.ErrorKind(m.ErrorKind),
		CreatedAt:      m.CreatedAt,
	}
	if !m.StartedAt.IsZero() {
		started := m.StartedAt
		record.StartedAt = &started
	}
	if !m.CompletedAt.IsZero() {
		completed := m.CompletedAt
		record.CompletedAt = &completed
	}
	if m.Skipped != "" && m.Skipped != "null" {
		if err := json.Unmarshal([]byte(m.Skipped), &record.Skipped); err != nil {
			return deck.JobRecord{}, err
		}
	}
	return record, nil
}
