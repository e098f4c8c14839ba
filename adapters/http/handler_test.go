package deckhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	deckpdf "github.com/goliatone/go-deck-export/adapters/pdf"
	"github.com/goliatone/go-deck-export/deck"
)

type fakeSurface struct {
	frame   deck.Frame
	failErr error
}

func (s *fakeSurface) ID() string { return "fake" }
func (s *fakeSurface) Advance(ctx context.Context) error { return nil }
func (s *fakeSurface) Previous(ctx context.Context) error { return nil }
func (s *fakeSurface) Reset(ctx context.Context) error { return nil }
func (s *fakeSurface) Capture(ctx context.Context, scale float64) (deck.Frame, error) {
	if s.failErr != nil {
		return deck.Frame{}, s.failErr
	}
	return s.frame, nil
}

func testFrame(t *testing.T) deck.Frame {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 18))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return deck.Frame{Data: buf.Bytes(), Format: "png", Width: 32, Height: 18}
}

func newTestApp(t *testing.T, surface *fakeSurface) (*fiber.App, *deck.Service) {
	t.Helper()

	catalog := deck.NewCatalog("http://frontend")
	if err := catalog.Register(deck.Presentation{ID: "intro", Title: "Intro Deck", SlideCount: 2}); err != nil {
		t.Fatalf("register: %v", err)
	}
	exporter := deck.NewExporter(deckpdf.Factory(deckpdf.Options{}))
	exporter.FirstSettle = 0
	exporter.SlideSettle = 0

	svc := deck.NewService(deck.ServiceConfig{
		Catalog:  catalog,
		Exporter: exporter,
		Opener: deck.SurfaceOpenerFunc(func(ctx context.Context, url string) (deck.Surface, error) {
			return surface, nil
		}),
		Dispatch: func(fn func()) { fn() },
	})

	app := fiber.New()
	NewHandler(Config{Service: svc, Version: "test"}).RegisterRoutes(app)
	return app, svc
}

func doRequest(t *testing.T, app *fiber.App, method, target string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil), -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHandler_Health(t *testing.T) {
	app, _ := newTestApp(t, &fakeSurface{})
	resp := doRequest(t, app, http.MethodGet, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload HealthResponse
	decodeJSON(t, resp, &payload)
	if payload.Status != "ok" || payload.Version != "test" {
		t.Fatalf("unexpected health %+v", payload)
	}
}

func TestHandler_Presentations(t *testing.T) {
	app, _ := newTestApp(t, &fakeSurface{})

	resp := doRequest(t, app, http.MethodGet, "/api/presentations")
	var list PresentationList
	decodeJSON(t, resp, &list)
	if len(list.Presentations) != 1 || list.Presentations[0].URL != "http://frontend/view/intro?print=true" {
		t.Fatalf("unexpected presentations %+v", list)
	}

	resp = doRequest(t, app, http.MethodGet, "/api/presentations/missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var errPayload ErrorResponse
	decodeJSON(t, resp, &errPayload)
	if errPayload.Error.Code != "not_found" {
		t.Fatalf("expected not_found code, got %+v", errPayload)
	}
}

func TestHandler_ExportFlow(t *testing.T) {
	app, _ := newTestApp(t, &fakeSurface{frame: testFrame(t)})

	resp := doRequest(t, app, http.MethodPost, "/api/exports/intro/export")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var job JobResponse
	decodeJSON(t, resp, &job)
	if job.JobID == "" || job.Status != string(deck.JobPending) {
		t.Fatalf("unexpected job %+v", job)
	}

	resp = doRequest(t, app, http.MethodGet, "/api/exports/"+job.JobID+"/status")
	var status JobResponse
	decodeJSON(t, resp, &status)
	if status.Status != string(deck.JobCompleted) || status.Progress != 100 || status.Pages != 2 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.DownloadURL != "/api/exports/"+job.JobID+"/download" {
		t.Fatalf("unexpected download url %q", status.DownloadURL)
	}

	resp = doRequest(t, app, http.MethodGet, status.DownloadURL)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="Intro_Deck.pdf"` {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	info, err := deckpdf.Inspect(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.Pages != 2 {
		t.Fatalf("expected 2 pages, got %d", info.Pages)
	}

	resp = doRequest(t, app, http.MethodGet, "/api/exports?status=completed&presentation=intro")
	var list JobList
	decodeJSON(t, resp, &list)
	if len(list.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(list.Jobs))
	}
}

func TestHandler_FailedJob(t *testing.T) {
	app, _ := newTestApp(t, &fakeSurface{failErr: errors.New("tab crashed")})

	resp := doRequest(t, app, http.MethodPost, "/api/exports/intro/export")
	var job JobResponse
	decodeJSON(t, resp, &job)

	resp = doRequest(t, app, http.MethodGet, "/api/exports/"+job.JobID+"/status")
	var status JobResponse
	decodeJSON(t, resp, &status)
	if status.Status != string(deck.JobFailed) || status.Progress != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.ErrorCode != string(deck.KindCaptureFailure) || status.Error == "" {
		t.Fatalf("expected capture failure, got %+v", status)
	}

	resp = doRequest(t, app, http.MethodGet, "/api/exports/"+job.JobID+"/download")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for failed download, got %d", resp.StatusCode)
	}
}

func TestHandler_UnknownJobAndPresentation(t *testing.T) {
	app, _ := newTestApp(t, &fakeSurface{})

	if resp := doRequest(t, app, http.MethodPost, "/api/exports/missing/export"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, app, http.MethodGet, "/api/exports/export_000000000000/status"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, app, http.MethodGet, "/api/exports/export_000000000000/download"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, app, http.MethodGet, "/api/exports?status=bogus"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		kind deck.ErrorKind
		want int
	}{
		{deck.KindInvalidInput, http.StatusBadRequest},
		{deck.KindNotFound, http.StatusNotFound},
		{deck.KindNotReady, http.StatusBadRequest},
		{deck.KindBusy, http.StatusConflict},
		{deck.KindCanceled, http.StatusConflict},
		{deck.KindTimeout, http.StatusRequestTimeout},
		{deck.KindCaptureFailure, http.StatusInternalServerError},
		{deck.KindSerialization, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		got := statusForError(deck.AsGoError(deck.NewError(tc.kind, "x", nil)))
		if got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
}
