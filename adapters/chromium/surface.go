package chromium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/goliatone/go-deck-export/deck"
)

const settlePollInterval = 50 * time.Millisecond

type key struct {
	name string
	code int64
}

var (
	keyNext  = key{name: "ArrowRight", code: 39}
	keyPrev  = key{name: "ArrowLeft", code: 37}
	keyFirst = key{name: "Home", code: 36}
)

// Surface is one browser tab showing a slide deck.
type Surface struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	selectors []string
}

var (
	_ deck.Surface = (*Surface)(nil)
	_ deck.Settler = (*Surface)(nil)
)

func (s *Surface) ID() string { return s.id }

// Advance dispatches ArrowRight to the page.
func (s *Surface) Advance(ctx context.Context) error { return s.press(ctx, keyNext) }

// Previous dispatches ArrowLeft to the page.
func (s *Surface) Previous(ctx context.Context) error { return s.press(ctx, keyPrev) }

// Reset dispatches Home to the page.
func (s *Surface) Reset(ctx context.Context) error { return s.press(ctx, keyFirst) }

// Capture screenshots the deck root clipped to the viewport.
func (s *Surface) Capture(ctx context.Context, scale float64) (deck.Frame, error) {
	if scale <= 0 {
		scale = deck.DefaultScale
	}
	execCtx, stop := s.bind(ctx)
	defer stop()

	var box rootBox
	if err := chromedp.Run(execCtx, chromedp.Evaluate(rootBoxScript(s.selectors), &box)); err != nil {
		return deck.Frame{}, err
	}
	clip, ok := box.clip()
	if !ok {
		return deck.Frame{}, deck.ErrEmptyCapture
	}
	clip.Scale = scale

	var data []byte
	if err := chromedp.Run(execCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		data, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(clip).
			Do(ctx)
		return err
	})); err != nil {
		return deck.Frame{}, err
	}
	if len(data) == 0 {
		return deck.Frame{}, deck.ErrEmptyCapture
	}

	return deck.Frame{
		Data:   data,
		Format: "png",
		Width:  int(math.Round(clip.Width * scale)),
		Height: int(math.Round(clip.Height * scale)),
	}, nil
}

// Settled polls the page's SettledAttribute until it reads "true". Pages without
// the attribute return ErrNoSettleSignal so the caller keeps its fixed delay.
func (s *Surface) Settled(ctx context.Context) error {
	execCtx, stop := s.bind(ctx)
	defer stop()

	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()
	for {
		var state string
		if err := chromedp.Run(execCtx, chromedp.Evaluate(settledScript, &state)); err != nil {
			return err
		}
		settled, err := parseSettleState(state)
		if err != nil {
			return err
		}
		if settled {
			return nil
		}
		select {
		case <-execCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return execCtx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes the tab.
func (s *Surface) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *Surface) press(ctx context.Context, k key) error {
	execCtx, stop := s.bind(ctx)
	defer stop()
	return chromedp.Run(execCtx, keyActions(k)...)
}

// bind derives a tab context that is also canceled when ctx ends.
func (s *Surface) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	execCtx, cancel := context.WithCancel(s.ctx)
	if ctx == nil {
		return execCtx, cancel
	}
	release := context.AfterFunc(ctx, cancel)
	return execCtx, func() {
		release()
		cancel()
	}
}

func keyActions(k key) []chromedp.Action {
	return []chromedp.Action{
		input.DispatchKeyEvent(input.KeyDown).
			WithKey(k.name).
			WithCode(k.name).
			WithWindowsVirtualKeyCode(k.code).
			WithNativeVirtualKeyCode(k.code),
		input.DispatchKeyEvent(input.KeyUp).
			WithKey(k.name).
			WithCode(k.name).
			WithWindowsVirtualKeyCode(k.code).
			WithNativeVirtualKeyCode(k.code),
	}
}

type rootBox struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	ViewportWidth  float64 `json:"viewportWidth"`
	ViewportHeight float64 `json:"viewportHeight"`
}

// clip intersects the root box with the viewport.
func (b rootBox) clip() (*page.Viewport, bool) {
	left := math.Max(b.X, 0)
	top := math.Max(b.Y, 0)
	right := math.Min(b.X+b.Width, b.ViewportWidth)
	bottom := math.Min(b.Y+b.Height, b.ViewportHeight)
	width := right - left
	height := bottom - top
	if width <= 0 || height <= 0 {
		return nil, false
	}
	return &page.Viewport{X: left, Y: top, Width: width, Height: height, Scale: 1}, true
}

// SettledAttribute is set on the deck element by pages that report their own
// transitions: "false" as soon as navigation starts, "true" once the slide is shown.
const SettledAttribute = "data-deck-settled"

// ErrNoSettleSignal reports a page that does not expose SettledAttribute.
var ErrNoSettleSignal = errors.New("page does not expose " + SettledAttribute)

const settledScript = `(() => {
  const el = document.querySelector('[` + SettledAttribute + `]');
  if (!el) return "absent";
  return el.getAttribute('` + SettledAttribute + `') === "true" ? "settled" : "moving";
})()`

func parseSettleState(state string) (bool, error) {
	switch state {
	case "settled":
		return true, nil
	case "moving":
		return false, nil
	default:
		return false, ErrNoSettleSignal
	}
}

func rootBoxScript(selectors []string) string {
	encoded, err := json.Marshal(selectors)
	if err != nil {
		encoded = []byte("[]")
	}
	return fmt.Sprintf(`(() => {
  const selectors = %s;
  let el = null;
  for (const sel of selectors) {
    el = document.querySelector(sel);
    if (el) break;
  }
  if (!el) el = document.body;
  const r = el.getBoundingClientRect();
  return {
    x: r.left, y: r.top, width: r.width, height: r.height,
    viewportWidth: window.innerWidth, viewportHeight: window.innerHeight
  };
})()`, encoded)
}
