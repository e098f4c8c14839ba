package deckhttp

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-deck-export/deck"
	errorslib "github.com/goliatone/go-errors"
)

// HealthResponse describes the health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
}

// PresentationList wraps the catalog listing.
type PresentationList struct {
	Presentations []deck.Presentation `json:"presentations"`
}

// JobResponse describes an export job.
type JobResponse struct {
	JobID          string  `json:"jobId"`
	PresentationID string  `json:"presentationId"`
	Status         string  `json:"status"`
	Progress       int     `json:"progress"`
	Pages          int     `json:"pages,omitempty"`
	Skipped        []int   `json:"skipped,omitempty"`
	Filename       string  `json:"filename,omitempty"`
	StatusURL      string  `json:"statusUrl"`
	DownloadURL    string  `json:"downloadUrl,omitempty"`
	Error          string  `json:"error,omitempty"`
	ErrorCode      string  `json:"errorCode,omitempty"`
	CreatedAt      string  `json:"createdAt"`
	CompletedAt    *string `json:"completedAt,omitempty"`
}

// JobList wraps job listings.
type JobList struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse describes JSON error responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains error details.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func jobResponse(record deck.JobRecord) JobResponse {
	out := JobResponse{
		JobID:          record.ID,
		PresentationID: record.PresentationID,
		Status:         string(record.State),
		Progress:       record.Progress,
		Pages:          record.Pages,
		Skipped:        record.Skipped,
		Filename:       record.Filename,
		StatusURL:      "/api/exports/" + record.ID + "/status",
		DownloadURL:    record.DownloadURL,
		Error:          record.Error,
		ErrorCode:      string(record.ErrorKind),
		CreatedAt:      record.CreatedAt.Format(time.RFC3339),
	}
	if record.CompletedAt != nil {
		completed := record.CompletedAt.Format(time.RFC3339)
		out.CompletedAt = &completed
	}
	return out
}

// WriteError writes err as a JSON error payload with a mapped status code.
func WriteError(c *fiber.Ctx, err error) error {
	if err == nil {
		return c.SendStatus(http.StatusNoContent)
	}
	ge := deck.AsGoError(err)
	return c.Status(statusForError(ge)).JSON(ErrorResponse{
		Error: ErrorBody{
			Message: ge.Message,
			Code:    ge.TextCode,
		},
	})
}

func statusForError(err *errorslib.Error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	switch err.Category {
	case errorslib.CategoryValidation:
		return http.StatusBadRequest
	case errorslib.CategoryNotFound:
		return http.StatusNotFound
	case errorslib.CategoryOperation:
		switch err.TextCode {
		case string(deck.KindNotReady):
			return http.StatusBadRequest
		case string(deck.KindBusy), string(deck.KindCanceled):
			return http.StatusConflict
		}
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
