package deckhttp

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-deck-export/deck"
)

// Config configures the HTTP adapter.
type Config struct {
	Service  *deck.Service
	Logger   deck.Logger
	BasePath string
	Version  string
}

// Handler exposes presentation and export job endpoints on fiber.
type Handler struct {
	service  *deck.Service
	logger   deck.Logger
	basePath string
	version  string
	started  time.Time
}

// NewHandler creates a new HTTP handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		service:  cfg.Service,
		logger:   cfg.Logger,
		basePath: cfg.BasePath,
		version:  cfg.Version,
		started:  time.Now(),
	}
	if h.logger == nil {
		h.logger = deck.NopLogger{}
	}
	if h.basePath == "" {
		h.basePath = "/api"
	}
	return h
}

// RegisterRoutes registers the API routes on r.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	api := r.Group(h.basePath)
	api.Get("/health", h.Health)
	api.Get("/presentations", h.ListPresentations)
	api.Get("/presentations/:id", h.GetPresentation)
	api.Get("/exports", h.ListExports)
	api.Post("/exports/:presentation_id/export", h.StartExport)
	api.Get("/exports/:job_id/status", h.ExportStatus)
	api.Get("/exports/:job_id/download", h.Download)
}

// Health reports service liveness.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

// ListPresentations returns the catalog.
func (h *Handler) ListPresentations(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return WriteError(c, err)
	}
	return c.JSON(PresentationList{Presentations: h.service.Catalog().List()})
}

// GetPresentation returns one presentation.
func (h *Handler) GetPresentation(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return WriteError(c, err)
	}
	p, err := h.service.Catalog().Get(c.Params("id"))
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(p)
}

// StartExport queues an export job and answers 201 with the pending job.
func (h *Handler) StartExport(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return WriteError(c, err)
	}
	record, err := h.service.StartExport(c.UserContext(), c.Params("presentation_id"))
	if err != nil {
		h.logger.Errorf("start export for %s: %v", c.Params("presentation_id"), err)
		return WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(jobResponse(record))
}

// ExportStatus returns a job's state and progress.
func (h *Handler) ExportStatus(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return WriteError(c, err)
	}
	record, err := h.service.Status(c.UserContext(), c.Params("job_id"))
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(jobResponse(record))
}

// ListExports returns jobs filtered by presentation and status.
func (h *Handler) ListExports(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return WriteError(c, err)
	}
	filter, err := parseFilter(c)
	if err != nil {
		return WriteError(c, err)
	}
	records, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return WriteError(c, err)
	}
	out := make([]JobResponse, 0, len(records))
	for _, record := range records {
		out = append(out, jobResponse(record))
	}
	return c.JSON(JobList{Jobs: out})
}

// Download streams the finished PDF as an attachment.
func (h *Handler) Download(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return WriteError(c, err)
	}
	jobID := c.Params("job_id")
	reader, meta, err := h.service.Download(c.UserContext(), jobID)
	if err != nil {
		return WriteError(c, err)
	}

	filename := meta.Filename
	if filename == "" {
		filename = deck.ArtifactKey(jobID)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set("X-Export-Id", jobID)
	c.Attachment(filename)
	size := -1
	if meta.Size > 0 {
		size = int(meta.Size)
	}
	return c.SendStream(reader, size)
}

func (h *Handler) ready() error {
	if h == nil || h.service == nil {
		return deck.NewError(deck.KindInternal, "export service not configured", nil)
	}
	return nil
}

func parseFilter(c *fiber.Ctx) (deck.JobFilter, error) {
	filter := deck.JobFilter{
		PresentationID: c.Query("presentation"),
		State:          deck.JobState(c.Query("status")),
	}
	switch filter.State {
	case "", deck.JobPending, deck.JobProcessing, deck.JobCompleted, deck.JobFailed:
	default:
		return deck.JobFilter{}, deck.NewError(deck.KindInvalidInput, "invalid status filter", nil)
	}
	if since := c.Query("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return deck.JobFilter{}, deck.NewError(deck.KindInvalidInput, "invalid since timestamp", err)
		}
		filter.Since = ts
	}
	if until := c.Query("until"); until != "" {
		ts, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return deck.JobFilter{}, deck.NewError(deck.KindInvalidInput, "invalid until timestamp", err)
		}
		filter.Until = ts
	}
	return filter, nil
}
