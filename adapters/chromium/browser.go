package chromium

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/goliatone/go-deck-export/deck"
)

const (
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
)

// DefaultRootSelectors are tried in order when resolving the deck root element.
var DefaultRootSelectors = []string{`[class*="spectacle-deck"]`, ".deck", "[data-deck]"}

// Browser owns a shared headless Chromium instance and opens one tab per surface.
type Browser struct {
	BrowserPath    string
	Headless       bool
	Args           []string
	ViewportWidth  int
	ViewportHeight int
	RootSelectors  []string
	// LoadTimeout bounds navigation and readiness of a newly opened tab.
	LoadTimeout time.Duration
	Logger      deck.Logger

	initOnce      sync.Once
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	startErr      error
	tabs          atomic.Uint64
}

// NewBrowser returns a headless browser with the default viewport.
func NewBrowser() *Browser {
	return &Browser{
		Headless:       true,
		ViewportWidth:  DefaultViewportWidth,
		ViewportHeight: DefaultViewportHeight,
		LoadTimeout:    30 * time.Second,
	}
}

// Open navigates a new tab to url and returns it as a slide surface.
func (b *Browser) Open(ctx context.Context, url string) (deck.Surface, error) {
	if b == nil {
		return nil, deck.NewError(deck.KindInternal, "chromium browser is nil", nil)
	}
	if strings.TrimSpace(url) == "" {
		return nil, deck.NewError(deck.KindInvalidInput, "surface url is required", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := b.ensureBrowser(); err != nil {
		return nil, deck.NewError(deck.KindInternal, "chromium browser init failed", err)
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, deck.NewError(deck.KindInternal, "failed to open browser tab", err)
	}
	surface := &Surface{
		id:        b.nextSurfaceID(),
		ctx:       tabCtx,
		cancel:    cancel,
		selectors: b.rootSelectors(),
	}

	loadCtx, stop := surface.bind(ctx)
	defer stop()
	if b.LoadTimeout > 0 {
		var cancelTimeout context.CancelFunc
		loadCtx, cancelTimeout = context.WithTimeout(loadCtx, b.LoadTimeout)
		defer cancelTimeout()
	}

	width, height := b.viewport()
	if err := chromedp.Run(loadCtx,
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		cancel()
		return nil, deck.NewError(deck.KindCaptureFailure, "failed to load slide surface", err)
	}

	b.logger().Debugf("opened surface %s at %s (%dx%d)", surface.id, url, width, height)
	return surface, nil
}

// Close releases Chromium resources if they have been initialized.
func (b *Browser) Close() error {
	if b == nil {
		return nil
	}
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

func (b *Browser) ensureBrowser() error {
	b.initOnce.Do(func() {
		options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if b.BrowserPath != "" {
			options = append(options, chromedp.ExecPath(b.BrowserPath))
		}
		width, height := b.viewport()
		options = append(options,
			chromedp.Flag("headless", b.Headless),
			chromedp.WindowSize(width, height),
		)
		options = append(options, allocatorOptionsFromArgs(b.Args)...)

		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), options...)
		b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)
		// start the browser on its own context so tabs never own its lifetime
		b.startErr = chromedp.Run(b.browserCtx)
	})
	if b.allocCtx == nil || b.browserCtx == nil {
		return errors.New("chromium allocator unavailable")
	}
	return b.startErr
}

func (b *Browser) viewport() (int, int) {
	width, height := b.ViewportWidth, b.ViewportHeight
	if width <= 0 {
		width = DefaultViewportWidth
	}
	if height <= 0 {
		height = DefaultViewportHeight
	}
	return width, height
}

func (b *Browser) rootSelectors() []string {
	if len(b.RootSelectors) == 0 {
		return append([]string{}, DefaultRootSelectors...)
	}
	return append([]string{}, b.RootSelectors...)
}

func (b *Browser) logger() deck.Logger {
	if b.Logger == nil {
		return deck.NopLogger{}
	}
	return b.Logger
}

func (b *Browser) nextSurfaceID() string {
	return "tab-" + strconv.FormatUint(b.tabs.Add(1), 10)
}

func allocatorOptionsFromArgs(args []string) []chromedp.ExecAllocatorOption {
	options := make([]chromedp.ExecAllocatorOption, 0, len(args))
	for _, arg := range args {
		name, value, ok := parseFlag(arg)
		if !ok {
			continue
		}
		options = append(options, chromedp.Flag(name, value))
	}
	return options
}

// parseFlag turns "--name=value" into ("name", "value") and "--name" into ("name", true).
func parseFlag(arg string) (string, any, bool) {
	arg = strings.TrimPrefix(strings.TrimSpace(arg), "--")
	if arg == "" {
		return "", nil, false
	}
	if name, value, ok := strings.Cut(arg, "="); ok {
		return name, value, true
	}
	return arg, true, true
}
