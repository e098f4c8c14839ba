package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Export.FirstSettle != 500*time.Millisecond || cfg.Export.SlideSettle != 300*time.Millisecond {
		t.Fatalf("unexpected settle defaults %v/%v", cfg.Export.FirstSettle, cfg.Export.SlideSettle)
	}
	if cfg.Export.Timeout != 3*time.Minute || cfg.Export.MaxAge != 24*time.Hour {
		t.Fatalf("unexpected timeouts %v/%v", cfg.Export.Timeout, cfg.Export.MaxAge)
	}
	if cfg.Browser.ViewportWidth != 1920 || cfg.Browser.ViewportHeight != 1080 {
		t.Fatalf("unexpected viewport %dx%d", cfg.Browser.ViewportWidth, cfg.Browser.ViewportHeight)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deckpdf.yaml")
	content := `
server:
  port: "9000"
export:
  slide_settle: 150ms
  scale: 1.5
  tracker: sqlite
presentations:
  - id: intro
    title: Intro Deck
    slide_count: 4
  - id: roadmap
    title: Roadmap
    slides:
      - heading: Now
      - heading: Next
        body: Later this year
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9000" || cfg.Server.Host != "localhost" {
		t.Fatalf("unexpected server %+v", cfg.Server)
	}
	if cfg.Export.SlideSettle != 150*time.Millisecond || cfg.Export.FirstSettle != 500*time.Millisecond {
		t.Fatalf("unexpected settle %v/%v", cfg.Export.SlideSettle, cfg.Export.FirstSettle)
	}
	if cfg.Export.Scale != 1.5 || cfg.Export.Tracker != "sqlite" {
		t.Fatalf("unexpected export %+v", cfg.Export)
	}
	if len(cfg.Presentations) != 2 || cfg.Presentations[0].SlideCount != 4 {
		t.Fatalf("unexpected presentations %+v", cfg.Presentations)
	}
	if len(cfg.Presentations[1].Slides) != 2 || cfg.Presentations[1].Slides[1].Body != "Later this year" {
		t.Fatalf("unexpected slides %+v", cfg.Presentations[1].Slides)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DECKPDF_PORT":         "7000",
		"DECKPDF_TIMEOUT":      "90s",
		"DECKPDF_SCALE":        "1",
		"DECKPDF_HEADLESS":     "false",
		"DECKPDF_CHROME_ARGS":  "--no-sandbox, --mute-audio ,",
		"DECKPDF_JPEG_QUALITY": "80",
	}
	cfg := Defaults()
	err := cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Server.Port != "7000" || cfg.Export.Timeout != 90*time.Second || cfg.Export.Scale != 1 {
		t.Fatalf("unexpected overrides %+v %+v", cfg.Server, cfg.Export)
	}
	if cfg.Browser.Headless {
		t.Fatalf("expected headless false")
	}
	if len(cfg.Browser.Args) != 2 || cfg.Browser.Args[1] != "--mute-audio" {
		t.Fatalf("unexpected args %v", cfg.Browser.Args)
	}
	if cfg.Export.JPEGQuality != 80 {
		t.Fatalf("unexpected quality %d", cfg.Export.JPEGQuality)
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	cfg := Defaults()
	err := cfg.ApplyEnv(func(key string) (string, bool) {
		switch key {
		case "DECKPDF_TIMEOUT":
			return "soon", true
		case "DECKPDF_SCALE":
			return "big", true
		}
		return "", false
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "DECKPDF_TIMEOUT") || !strings.Contains(err.Error(), "DECKPDF_SCALE") {
		t.Fatalf("expected both errors, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Export.Scale = 0
	cfg.Export.Encoding = "gif"
	cfg.Export.Tracker = "redis"
	cfg.Presentations = nil
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"scale", "encoding", "tracker"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}
