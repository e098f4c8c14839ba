package deck

import "math"

const (
	progressStarted    = 5
	progressNavigated  = 10
	progressSlideSpan  = 80
	progressFinalizing = 95
	progressDone       = 100
)

// SlideProgress is the checkpoint emitted after slide index i of total, whether or
// not the slide produced a page.
func SlideProgress(i, total int) int {
	if total <= 0 {
		return progressNavigated
	}
	return progressNavigated + int(math.Round(float64(i+1)/float64(total)*progressSlideSpan))
}

// progressReporter keeps reported values non-decreasing until reset.
type progressReporter struct {
	fn   ProgressFunc
	last int
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (p *progressReporter) report(percent int) {
	if percent < p.last {
		percent = p.last
	}
	if percent > progressDone {
		percent = progressDone
	}
	p.last = percent
	if p.fn != nil {
		p.fn(percent)
	}
}

func (p *progressReporter) reset() {
	p.last = 0
	if p.fn != nil {
		p.fn(0)
	}
}
