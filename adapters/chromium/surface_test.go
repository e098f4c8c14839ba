package chromium

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/goliatone/go-deck-export/deck"
)

func chromeBinaryPath(t *testing.T) string {
	t.Helper()

	chromePath := os.Getenv("CHROME_BIN")
	if chromePath == "" {
		paths := []string{"google-chrome", "chromium", "chromium-browser"}
		for _, candidate := range paths {
			if path, err := exec.LookPath(candidate); err == nil {
				chromePath = path
				break
			}
		}
	}
	if chromePath == "" {
		t.Skip("chromium binary not found; set CHROME_BIN to run this test")
	}

	return chromePath
}

func TestRootBoxClip(t *testing.T) {
	tests := []struct {
		name  string
		box   rootBox
		want  [4]float64
		empty bool
	}{
		{
			name: "inside viewport",
			box:  rootBox{X: 10, Y: 20, Width: 100, Height: 50, ViewportWidth: 1920, ViewportHeight: 1080},
			want: [4]float64{10, 20, 100, 50},
		},
		{
			name: "taller than viewport",
			box:  rootBox{X: 0, Y: 0, Width: 1920, Height: 5000, ViewportWidth: 1920, ViewportHeight: 1080},
			want: [4]float64{0, 0, 1920, 1080},
		},
		{
			name: "scrolled above viewport",
			box:  rootBox{X: -20, Y: -100, Width: 500, Height: 400, ViewportWidth: 1920, ViewportHeight: 1080},
			want: [4]float64{0, 0, 480, 300},
		},
		{
			name:  "zero width",
			box:   rootBox{X: 0, Y: 0, Width: 0, Height: 1080, ViewportWidth: 1920, ViewportHeight: 1080},
			empty: true,
		},
		{
			name:  "offscreen",
			box:   rootBox{X: 2000, Y: 0, Width: 100, Height: 100, ViewportWidth: 1920, ViewportHeight: 1080},
			empty: true,
		},
	}

	for _, tc := range tests {
		clip, ok := tc.box.clip()
		if tc.empty {
			if ok {
				t.Fatalf("%s: expected empty clip, got %+v", tc.name, clip)
			}
			continue
		}
		if !ok {
			t.Fatalf("%s: expected clip", tc.name)
		}
		got := [4]float64{clip.X, clip.Y, clip.Width, clip.Height}
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestRootBoxScript_IncludesSelectors(t *testing.T) {
	script := rootBoxScript(DefaultRootSelectors)
	if !strings.Contains(script, `"[class*=\"spectacle-deck\"]"`) {
		t.Fatalf("expected deck selector in script: %s", script)
	}
	if !strings.Contains(script, "window.innerHeight") {
		t.Fatalf("expected viewport bound in script")
	}
}

func TestParseSettleState(t *testing.T) {
	tests := []struct {
		state   string
		settled bool
		err     error
	}{
		{state: "settled", settled: true},
		{state: "moving", settled: false},
		{state: "absent", err: ErrNoSettleSignal},
		{state: "", err: ErrNoSettleSignal},
	}
	for _, tc := range tests {
		settled, err := parseSettleState(tc.state)
		if settled != tc.settled || !errors.Is(err, tc.err) {
			t.Fatalf("%q: expected (%v, %v), got (%v, %v)", tc.state, tc.settled, tc.err, settled, err)
		}
	}
}

func TestSettledScript_ReadsAttribute(t *testing.T) {
	if !strings.Contains(settledScript, "[data-deck-settled]") {
		t.Fatalf("expected attribute selector in script: %s", settledScript)
	}
	if strings.Contains(settledScript, "getAnimations") {
		t.Fatalf("settle state must come from the page, not from running animations")
	}
}

func TestKeyActions(t *testing.T) {
	actions := keyActions(keyNext)
	if len(actions) != 2 {
		t.Fatalf("expected key down and up, got %d", len(actions))
	}
	down, ok := actions[0].(*input.DispatchKeyEventParams)
	if !ok {
		t.Fatalf("unexpected action type %T", actions[0])
	}
	if down.Type != input.KeyDown || down.Key != "ArrowRight" || down.WindowsVirtualKeyCode != 39 {
		t.Fatalf("unexpected key down %+v", down)
	}
	up := actions[1].(*input.DispatchKeyEventParams)
	if up.Type != input.KeyUp {
		t.Fatalf("expected key up, got %s", up.Type)
	}
}

func TestParseFlag(t *testing.T) {
	name, value, ok := parseFlag("--no-sandbox")
	if !ok || name != "no-sandbox" || value != true {
		t.Fatalf("unexpected flag %q=%v", name, value)
	}
	name, value, ok = parseFlag(" --window-size=1920,1080 ")
	if !ok || name != "window-size" || value != "1920,1080" {
		t.Fatalf("unexpected flag %q=%v", name, value)
	}
	if _, _, ok := parseFlag("--"); ok {
		t.Fatalf("expected empty flag to be skipped")
	}
}

func TestBrowser_OpenRequiresURL(t *testing.T) {
	browser := NewBrowser()
	_, err := browser.Open(context.Background(), " ")
	if deck.KindFromError(err) != deck.KindInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

const smokeDeck = `<!doctype html>
<html><head><style>
html, body { margin: 0; }
.spectacle-deck { width: 100vw; height: 100vh; background: #123456; color: #fff; }
.slide { display: none; font-size: 120px; }
.slide.active { display: block; }
</style></head>
<body><div class="spectacle-deck" data-deck-settled="true">
<div class="slide active">one</div><div class="slide">two</div><div class="slide">three</div>
</div>
<script>
let current = 0;
const slides = document.querySelectorAll('.slide');
function show(i) { slides[current].classList.remove('active'); current = i; slides[current].classList.add('active'); }
document.addEventListener('keydown', (e) => {
  if (e.key === 'ArrowRight' && current < slides.length - 1) show(current + 1);
  if (e.key === 'ArrowLeft' && current > 0) show(current - 1);
  if (e.key === 'Home') show(0);
});
</script></body></html>`

func TestSurface_CaptureDeck(t *testing.T) {
	chromePath := chromeBinaryPath(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(smokeDeck))
	}))
	defer server.Close()

	browser := NewBrowser()
	browser.BrowserPath = chromePath
	browser.Args = []string{"--no-sandbox", "--disable-dev-shm-usage"}
	defer browser.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	surface, err := browser.Open(ctx, server.URL)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer surface.(*Surface).Close()

	if err := surface.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := surface.(*Surface).Settled(ctx); err != nil {
		t.Fatalf("settled: %v", err)
	}
	frame, err := surface.Capture(ctx, 1)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if frame.Width != DefaultViewportWidth || frame.Height != DefaultViewportHeight {
		t.Fatalf("expected viewport sized frame, got %dx%d", frame.Width, frame.Height)
	}
	if !bytes.HasPrefix(frame.Data, []byte("\x89PNG")) {
		t.Fatalf("expected png data")
	}
	if err := surface.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
}

func TestSurface_SettledWithoutSignal(t *testing.T) {
	chromePath := chromeBinaryPath(t)

	page := strings.Replace(smokeDeck, ` data-deck-settled="true"`, "", 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	browser := NewBrowser()
	browser.BrowserPath = chromePath
	browser.Args = []string{"--no-sandbox"}
	defer browser.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	surface, err := browser.Open(ctx, server.URL)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer surface.(*Surface).Close()

	if err := surface.(*Surface).Settled(ctx); !errors.Is(err, ErrNoSettleSignal) {
		t.Fatalf("expected missing settle signal, got %v", err)
	}
}

func TestSurface_CaptureCanceled(t *testing.T) {
	chromePath := chromeBinaryPath(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(smokeDeck))
	}))
	defer server.Close()

	browser := NewBrowser()
	browser.BrowserPath = chromePath
	browser.Args = []string{"--no-sandbox"}
	defer browser.Close()

	surface, err := browser.Open(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer surface.(*Surface).Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := surface.Capture(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
