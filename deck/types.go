package deck

import (
	"context"
	"io"
	"time"
)

// DefaultScale is the capture sampling multiplier used when ExportOptions.Scale is zero.
const DefaultScale = 2.0

// ProgressFunc receives export progress as an integer percentage.
type ProgressFunc func(percent int)

// ExportOptions configures a single export.
type ExportOptions struct {
	// Title derives the output filename.
	Title string
	// TotalSlides must match the number of slides reachable by navigation.
	TotalSlides int
	// Scale is the rendering sampling multiplier.
	Scale float64
	// OnProgress receives non-decreasing values in [0, 100].
	OnProgress ProgressFunc
	// Output receives the finished document. Nothing is written on failure.
	Output io.Writer
}

// ExportResult summarizes a successful export.
type ExportResult struct {
	Filename string
	Pages    int
	Skipped  []int
	Bytes    int64
	Duration time.Duration
}

// Frame is one captured slide bitmap.
type Frame struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Empty reports whether the frame has no area.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0
}

// Surface is a handle to a mounted slide deck.
type Surface interface {
	// ID identifies the surface for the export guard.
	ID() string
	// Advance moves to the next slide.
	Advance(ctx context.Context) error
	// Previous moves to the previous slide.
	Previous(ctx context.Context) error
	// Reset moves to the first slide.
	Reset(ctx context.Context) error
	// Capture rasterizes the currently displayed slide.
	Capture(ctx context.Context, scale float64) (Frame, error)
}

// Settler is implemented by surfaces that can signal the end of a slide transition.
type Settler interface {
	Settled(ctx context.Context) error
}

// Assembler accumulates captured frames into a document.
type Assembler interface {
	Begin() error
	AddPage(frame Frame, first bool) error
	Finish(w io.Writer) error
}

// AssemblerFactory creates a fresh assembler per export.
type AssemblerFactory func() Assembler

// State is the orchestrator state of one export.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateCapturing  State = "capturing"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Logger provides logging hooks.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// ChangeEvent describes export lifecycle events.
type ChangeEvent struct {
	Name      string
	SurfaceID string
	Title     string
	State     State
	Slide     int
	Timestamp time.Time
	Metadata  map[string]any
}

// ChangeEmitter emits lifecycle events.
type ChangeEmitter interface {
	Emit(ctx context.Context, evt ChangeEvent) error
}

// ChangeEmitterFunc adapts a function to a ChangeEmitter.
type ChangeEmitterFunc func(ctx context.Context, evt ChangeEvent) error

func (f ChangeEmitterFunc) Emit(ctx context.Context, evt ChangeEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, evt)
}
