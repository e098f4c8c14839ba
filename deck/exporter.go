package deck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	// DefaultFirstSettle is the wait after returning to the first slide.
	DefaultFirstSettle = 500 * time.Millisecond
	// DefaultSlideSettle is the wait before each capture.
	DefaultSlideSettle = 300 * time.Millisecond
	// DefaultTimeout bounds a whole export.
	DefaultTimeout = 3 * time.Minute
)

// Exporter drives a Surface through its slides and assembles the captures into a PDF.
type Exporter struct {
	NewAssembler AssemblerFactory
	Logger       Logger
	Emitter      ChangeEmitter
	FirstSettle  time.Duration
	SlideSettle  time.Duration
	Timeout      time.Duration
	Now          func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

// NewExporter creates an exporter with default settle delays and watchdog.
func NewExporter(factory AssemblerFactory) *Exporter {
	return &Exporter{
		NewAssembler: factory,
		Logger:       NopLogger{},
		FirstSettle:  DefaultFirstSettle,
		SlideSettle:  DefaultSlideSettle,
		Timeout:      DefaultTimeout,
		Now:          time.Now,
	}
}

// Export captures every slide of surface into a single document written to opts.Output.
func (e *Exporter) Export(ctx context.Context, surface Surface, opts ExportOptions) (ExportResult, error) {
	if e == nil {
		return ExportResult{}, NewError(KindInternal, "exporter is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.TotalSlides <= 0 {
		return ExportResult{}, NewError(KindInvalidInput, "no slides to export", nil)
	}
	if opts.Scale < 0 {
		return ExportResult{}, NewError(KindInvalidInput, "scale must be positive", nil)
	}
	if surface == nil {
		return ExportResult{}, NewError(KindInvalidInput, "slide surface is required", nil)
	}
	if opts.Output == nil {
		return ExportResult{}, NewError(KindInvalidInput, "output writer is required", nil)
	}
	if e.NewAssembler == nil {
		return ExportResult{}, NewError(KindInternal, "assembler factory is not configured", nil)
	}
	if opts.Scale == 0 {
		opts.Scale = DefaultScale
	}
	e.defaults()

	release, err := e.acquire(surface.ID())
	if err != nil {
		return ExportResult{}, err
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	r := &run{
		exporter: e,
		surface:  surface,
		opts:     opts,
		progress: newProgressReporter(opts.OnProgress),
		state:    StateIdle,
		started:  e.Now(),
	}

	// the surface stays claimed until the worker returns, even after a timeout
	done := make(chan outcome, 1)
	go func() {
		result, err := r.execute(ctx)
		release()
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		// surface calls that ignore ctx must not hold the export past its deadline
		if r.abandon() {
			out = outcome{err: ctx.Err()}
		} else {
			out = <-done
		}
	}

	if out.err != nil {
		err := classify(ctx, out.err)
		r.fail(ctx, err)
		return ExportResult{}, err
	}
	return out.result, nil
}

type outcome struct {
	result ExportResult
	err    error
}

func (e *Exporter) defaults() {
	if e.Logger == nil {
		e.Logger = NopLogger{}
	}
	if e.Now == nil {
		e.Now = time.Now
	}
}

func (e *Exporter) acquire(id string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		e.active = make(map[string]struct{})
	}
	if _, busy := e.active[id]; busy {
		return nil, NewError(KindBusy, fmt.Sprintf("export already running for surface %q", id), nil)
	}
	e.active[id] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.active, id)
		e.mu.Unlock()
	}, nil
}

type run struct {
	exporter *Exporter
	surface  Surface
	opts     ExportOptions
	started  time.Time

	// mu guards everything the worker reports after Export may have returned.
	mu        sync.Mutex
	progress  *progressReporter
	state     State
	abandoned bool
	committed bool
}

func (r *run) execute(ctx context.Context) (ExportResult, error) {
	e := r.exporter
	total := r.opts.TotalSlides

	r.transition(ctx, StateStarting, -1, nil)
	r.report(progressStarted)

	if err := r.surface.Reset(ctx); err != nil {
		return ExportResult{}, NewError(KindCaptureFailure, "failed to reset slide surface", err)
	}
	if err := r.settle(ctx, e.FirstSettle); err != nil {
		return ExportResult{}, err
	}
	r.report(progressNavigated)

	assembler := e.NewAssembler()
	if assembler == nil {
		return ExportResult{}, NewError(KindInternal, "assembler factory returned nil", nil)
	}
	if err := assembler.Begin(); err != nil {
		return ExportResult{}, NewError(KindSerialization, "failed to open document", err)
	}

	pages := 0
	skipped := []int{}
	for i := 0; i < total; i++ {
		r.transition(ctx, StateCapturing, i, nil)

		if err := r.settle(ctx, e.SlideSettle); err != nil {
			return ExportResult{}, err
		}

		frame, err := r.surface.Capture(ctx, r.opts.Scale)
		if err == nil && frame.Empty() {
			err = ErrEmptyCapture
		}
		switch {
		case err == nil:
			if err := assembler.AddPage(frame, pages == 0); err != nil {
				return ExportResult{}, NewError(KindSerialization, fmt.Sprintf("failed to add page for slide %d", i+1), err)
			}
			pages++
			e.Logger.Debugf("captured slide %d/%d (%dx%d)", i+1, total, frame.Width, frame.Height)
		case KindFromError(err) == KindEmptyCapture:
			skipped = append(skipped, i)
			e.Logger.Infof("slide %d/%d produced an empty capture, skipping", i+1, total)
			r.event(ctx, "export.slide_skipped", i, nil)
		default:
			return ExportResult{}, NewError(KindCaptureFailure, fmt.Sprintf("failed to capture slide %d", i+1), err)
		}

		r.report(SlideProgress(i, total))

		if i < total-1 {
			if err := r.surface.Advance(ctx); err != nil {
				return ExportResult{}, NewError(KindCaptureFailure, fmt.Sprintf("failed to advance past slide %d", i+1), err)
			}
		}
	}

	r.transition(ctx, StateFinalizing, -1, nil)
	r.report(progressFinalizing)

	var buf bytes.Buffer
	if err := assembler.Finish(&buf); err != nil {
		return ExportResult{}, NewError(KindSerialization, "failed to serialize document", err)
	}
	written, err := r.commit(ctx, &buf)
	if err != nil {
		return ExportResult{}, err
	}

	if err := r.surface.Reset(ctx); err != nil {
		e.Logger.Errorf("failed to restore first slide: %v", err)
	}
	r.report(progressDone)

	result := ExportResult{
		Filename: Filename(r.opts.Title),
		Pages:    pages,
		Skipped:  skipped,
		Bytes:    written,
		Duration: e.Now().Sub(r.started),
	}
	r.transition(ctx, StateDone, -1, map[string]any{
		"pages":    result.Pages,
		"skipped":  len(result.Skipped),
		"bytes":    result.Bytes,
		"filename": result.Filename,
	})
	e.Logger.Infof("exported %q: %d page(s), %d skipped, %d bytes", r.opts.Title, pages, len(skipped), written)
	return result, nil
}

// settle waits for the slide transition. Surfaces that implement Settler may finish
// early; the fixed delay is the upper bound.
func (r *run) settle(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	settler, ok := r.surface.(Settler)
	if !ok {
		return sleep(ctx, delay)
	}

	waitCtx, cancel := context.WithTimeout(ctx, delay)
	defer cancel()
	err := settler.Settled(waitCtx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		r.exporter.Logger.Debugf("settle signal failed, falling back to delay: %v", err)
		<-waitCtx.Done()
		return ctx.Err()
	}
	return nil
}

// commit copies the finished document to the caller's writer unless the export
// was already abandoned.
func (r *run) commit(ctx context.Context, buf *bytes.Buffer) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abandoned {
		return 0, NewError(KindCanceled, "export abandoned before the document was written", nil)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	written, err := io.Copy(r.opts.Output, buf)
	if err != nil {
		return 0, NewError(KindSerialization, "failed to write document", err)
	}
	r.committed = true
	return written, nil
}

// abandon detaches the worker so nothing it does later reaches the caller. It
// reports false when the document was already written.
func (r *run) abandon() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.committed {
		return false
	}
	r.abandoned = true
	return true
}

func (r *run) report(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abandoned {
		return
	}
	r.progress.report(percent)
}

func (r *run) fail(ctx context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned = true
	r.progress.reset()
	r.exporter.Logger.Errorf("export %q failed in state %s: %v", r.opts.Title, r.state, err)
	r.transitionLocked(ctx, StateFailed, -1, map[string]any{
		"error":      err.Error(),
		"error_kind": KindFromError(err),
	})
}

func (r *run) transition(ctx context.Context, state State, slide int, meta map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abandoned {
		return
	}
	r.transitionLocked(ctx, state, slide, meta)
}

func (r *run) transitionLocked(ctx context.Context, state State, slide int, meta map[string]any) {
	if r.state == state && state != StateCapturing {
		return
	}
	r.state = state

	name := ""
	switch state {
	case StateStarting:
		name = "export.started"
	case StateDone:
		name = "export.completed"
	case StateFailed:
		name = "export.failed"
	default:
		return
	}
	r.emitLocked(ctx, name, slide, meta)
}

func (r *run) event(ctx context.Context, name string, slide int, meta map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abandoned {
		return
	}
	r.emitLocked(ctx, name, slide, meta)
}

func (r *run) emitLocked(ctx context.Context, name string, slide int, meta map[string]any) {
	e := r.exporter
	if e.Emitter == nil {
		return
	}
	// the export context may already be expired when reporting a failure
	_ = e.Emitter.Emit(context.WithoutCancel(ctx), ChangeEvent{
		Name:      name,
		SurfaceID: r.surface.ID(),
		Title:     r.opts.Title,
		State:     r.state,
		Slide:     slide,
		Timestamp: e.Now(),
		Metadata:  meta,
	})
}

// classify attaches a timeout or canceled kind when the export context ended the run.
func classify(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		if KindFromError(err) != KindTimeout {
			return NewError(KindTimeout, "export timed out", err)
		}
	case context.Canceled:
		if KindFromError(err) != KindCanceled {
			return NewError(KindCanceled, "export canceled", err)
		}
	}
	var deckErr *Error
	if !errors.As(err, &deckErr) {
		return NewError(KindFromError(err), "export failed", err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
